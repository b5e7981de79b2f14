package control

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestTextBoxRoundTrip(t *testing.T) {
	tb := NewTextBox("abc123", "Label", "initial")
	tb.SetMapRange(0)

	payload, err := tb.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var fired int
	tb.OnReceived(func() { fired++ })

	other := NewTextBox("abc123", "Label", "")
	other.SetMapRange(0)
	if !other.Decode(payload) {
		t.Fatal("Decode should succeed on a matching payload")
	}
	if other.Value() != "initial" {
		t.Errorf("Value = %q, want %q", other.Value(), "initial")
	}

	if tb.Decode(payload) != true {
		t.Fatal("Decode on the original should also succeed")
	}
	if fired != 1 {
		t.Errorf("OnReceived fired %d times, want 1", fired)
	}
}

func TestSliderClampAndWriteToMap(t *testing.T) {
	s := NewSlider("uid", "X", 0, 10, 3)
	s.SetMapRange(16)

	buf := make([]byte, 32)
	if err := s.WriteToMap(buf); err != nil {
		t.Fatalf("WriteToMap: %v", err)
	}

	got := binary.LittleEndian.Uint64(buf[16:24])
	if got != 3 {
		t.Errorf("wrote %d, want 3", got)
	}

	payload, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded := NewSlider("uid", "X", 0, 10, 0)
	if !decoded.Decode(payload) {
		t.Fatal("Decode should succeed")
	}
	if decoded.Value() != 3 {
		t.Errorf("decoded value = %d, want 3", decoded.Value())
	}

	// Out-of-range values clamp rather than erroring.
	decoded2 := NewSlider("uid", "X", 0, 10, 0)
	decoded2.Decode([]byte(`{"type":"Slider","label":"X","min":0,"max":10,"value":999}`))
	if decoded2.Value() != 10 {
		t.Errorf("expected clamp to max=10, got %d", decoded2.Value())
	}
}

func TestDecodeRejectsEmptyOrMismatchedTag(t *testing.T) {
	tb := NewTextBox("uid", "X", "v")
	if tb.Decode(nil) {
		t.Error("Decode(nil) should fail")
	}
	if tb.Decode([]byte(`{"type":"Slider","label":"X","min":0,"max":1,"value":1}`)) {
		t.Error("Decode with mismatched type tag should fail")
	}
}

func TestCheckBoxDataLengthAndWriteToMap(t *testing.T) {
	items := []ToggleItem{{Label: "a", IsChecked: true}, {Label: "b", IsChecked: false}, {Label: "c", IsChecked: true}}
	cb := NewCheckBox("uid", "Flags", items)
	cb.SetMapRange(4)

	if cb.DataLength() != 3 {
		t.Fatalf("DataLength = %d, want 3", cb.DataLength())
	}

	buf := make([]byte, 8)
	if err := cb.WriteToMap(buf); err != nil {
		t.Fatalf("WriteToMap: %v", err)
	}
	want := []byte{1, 0, 1}
	for i, w := range want {
		if buf[4+i] != w {
			t.Errorf("byte %d = %d, want %d", i, buf[4+i], w)
		}
	}
}

func TestRadioRoundTrip(t *testing.T) {
	r := NewRadio("uid", "Mode", []string{"a", "b", "c"}, 1)
	payload, err := r.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded := NewRadio("uid", "Mode", nil, 0)
	if !decoded.Decode(payload) {
		t.Fatal("Decode should succeed")
	}
	if decoded.Selected() != 1 {
		t.Errorf("Selected = %d, want 1", decoded.Selected())
	}
	if len(decoded.Items()) != 3 {
		t.Errorf("Items length = %d, want 3", len(decoded.Items()))
	}
}

func TestNeedsInitializationDeadline(t *testing.T) {
	tb := NewTextBox("uid", "X", "v")
	now := time.Now()

	if tb.NeedsInitialization(now) {
		t.Error("should not need initialization immediately after construction")
	}

	tb.ResetDeadline(now)
	if tb.NeedsInitialization(now) {
		t.Error("should not need initialization immediately after reset")
	}
	if !tb.NeedsInitialization(now.Add(3 * time.Second)) {
		t.Error("should need initialization after the deadline elapses")
	}

	tb.Decode([]byte(`{"type":"TextBox","label":"X","value":"v2"}`))
	if tb.NeedsInitialization(now.Add(3 * time.Second)) {
		t.Error("should never need initialization again once a decode has succeeded")
	}
}
