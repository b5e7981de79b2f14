package subsystem

import "testing"

func TestStatusMaxAndString(t *testing.T) {
	if Max(StatusOperational, StatusCaution) != StatusCaution {
		t.Error("Max should pick the more severe status")
	}
	if Max(StatusFailure, StatusUnknown) != StatusFailure {
		t.Error("Max should pick Failure over Unknown")
	}
	if StatusCaution.String() != "Caution" {
		t.Errorf("String() = %q, want Caution", StatusCaution.String())
	}
}

func TestParseProtocol(t *testing.T) {
	cases := map[string]Protocol{
		"MQTT":  ProtocolMQTT,
		"MQTTS": ProtocolMQTTS,
		"TCP":   ProtocolTCP,
		"":      ProtocolUnknown,
		"X":     ProtocolUnknown,
	}
	for in, want := range cases {
		if got := ParseProtocol(in); got != want {
			t.Errorf("ParseProtocol(%q) = %v, want %v", in, got, want)
		}
	}
	if !ProtocolMQTTS.IsMQTT() {
		t.Error("MQTTS should be IsMQTT")
	}
	if ProtocolTCP.IsMQTT() {
		t.Error("TCP should not be IsMQTT")
	}
}

func TestActivityQueueDrainSum(t *testing.T) {
	var q ActivityQueue
	q.Sample(3)
	q.Sample(5)
	if got := q.DrainSum(); got != 8 {
		t.Errorf("DrainSum = %d, want 8", got)
	}
	if got := q.DrainSum(); got != 0 {
		t.Errorf("DrainSum after drain = %d, want 0", got)
	}
}

func TestRateWindowDigits(t *testing.T) {
	var w RateWindow
	for _, v := range []int{0, 0, 0, 0, 0, 10} {
		w.Push(v)
	}
	digits := w.Digits()
	if len(digits) != rateWindowSlots {
		t.Fatalf("Digits length = %d, want %d", len(digits), rateWindowSlots)
	}
	if digits[rateWindowSlots-1] != '5' {
		t.Errorf("peak slot digit = %q, want '5'", digits[rateWindowSlots-1])
	}
	if digits[0] != '0' {
		t.Errorf("zero slot digit = %q, want '0'", digits[0])
	}
}

func TestRateWindowAllZero(t *testing.T) {
	var w RateWindow
	if got := w.Digits(); got != "000000" {
		t.Errorf("Digits() = %q, want all zero", got)
	}
}

func TestContextIsRunningConjunction(t *testing.T) {
	ctx := New("uid", "name", Endpoint{}, nil, nil)

	if ctx.IsRunning() {
		t.Error("should not be running before chain joined")
	}

	ctx.SetChain("c1", true)
	if ctx.IsRunning() {
		t.Error("should not be running until subsystem is chained")
	}

	ctx.SetSubsystemChained(true)
	if !ctx.IsRunning() {
		t.Error("should be running once chain running and subsystem chained")
	}

	ctx.SetChain("c1", false)
	if ctx.IsRunning() {
		t.Error("should stop running when chain stops")
	}
}

type fakeChannel struct{ status Status }

func (f fakeChannel) Status() Status { return f.status }
func (f fakeChannel) Halt()          {}

func TestContextStatusAggregation(t *testing.T) {
	ctx := New("uid", "name", Endpoint{}, nil, nil)
	ctx.SetChannels(fakeChannel{status: StatusOperational}, fakeChannel{status: StatusCaution})

	if got := ctx.Status(); got != StatusCaution {
		t.Errorf("Status() = %v, want Caution (max across channels)", got)
	}

	ctx.SetStatus(StatusFailure)
	if got := ctx.Status(); got != StatusFailure {
		t.Errorf("Status() = %v, want Failure once context itself fails", got)
	}
}
