package ingress

import (
	"testing"

	"github.com/RaedanWulfe/oddimorf/internal/schema"
	"github.com/RaedanWulfe/oddimorf/internal/subsystem"
)

func testDescriptor(t *testing.T) schema.Descriptor {
	t.Helper()
	d, err := schema.Parse("uint64,float,string_4")
	if err != nil {
		t.Fatalf("schema.Parse: %v", err)
	}
	return d
}

func TestParseRow(t *testing.T) {
	desc := testDescriptor(t)
	record, err := parseRow(desc, []string{"42", "3.5", "abcd"})
	if err != nil {
		t.Fatalf("parseRow: %v", err)
	}
	if record[0].(uint64) != 42 {
		t.Errorf("field 0 = %v, want 42", record[0])
	}
	if record[2].(string) != "abcd" {
		t.Errorf("field 2 = %v, want abcd", record[2])
	}
}

func TestParseRowWrongArity(t *testing.T) {
	desc := testDescriptor(t)
	if _, err := parseRow(desc, []string{"1", "2"}); err == nil {
		t.Error("expected error for mismatched field count")
	}
}

func TestUnpackMQTTLeavesTrailingElement(t *testing.T) {
	desc := testDescriptor(t)
	c := New(nil)
	c.Configure(subsystem.Endpoint{Protocol: subsystem.ProtocolMQTT, Topics: []string{"Raw"}}, "Raw", desc)

	c.handleMessage(desc, []byte("1,1.0,a\n2,2.0,b\n3,3.0,c\n"))

	if got := c.Queue().Len(); got != 3 {
		t.Fatalf("queue length = %d, want 3", got)
	}

	ready := c.Unpack()
	if len(ready) != 2 {
		t.Fatalf("Unpack() returned %d records, want 2 (qsize-1)", len(ready))
	}
	if c.Queue().Len() != 1 {
		t.Fatalf("queue should retain exactly 1 trailing record, has %d", c.Queue().Len())
	}
}

func TestUnpackTCPDecodesOneBufferPerCall(t *testing.T) {
	desc := testDescriptor(t)
	c := New(nil)
	c.Configure(subsystem.Endpoint{Protocol: subsystem.ProtocolTCP}, "Raw", desc)

	rec0, err := schema.Pack(desc, []any{uint64(0), float32(0), "aaaa"})
	if err != nil {
		t.Fatalf("schema.Pack: %v", err)
	}
	rec1, err := schema.Pack(desc, []any{uint64(1), float32(0), "bbbb"})
	if err != nil {
		t.Fatalf("schema.Pack: %v", err)
	}

	// First buffer on the wire carries two complete records.
	c.RawQueue().Enqueue(append(append([]byte{}, rec0...), rec1...))
	// Second buffer carries one.
	rec2, err := schema.Pack(desc, []any{uint64(2), float32(0), "cccc"})
	if err != nil {
		t.Fatalf("schema.Pack: %v", err)
	}
	c.RawQueue().Enqueue(rec2)

	if got := c.RawQueue().Len(); got != 2 {
		t.Fatalf("raw queue length = %d, want 2", got)
	}

	first := c.Unpack()
	if len(first) != 2 {
		t.Fatalf("Unpack() returned %d records from first buffer, want 2", len(first))
	}
	if c.RawQueue().Len() != 1 {
		t.Fatalf("raw queue should have 1 buffer left after one Unpack() call, has %d", c.RawQueue().Len())
	}

	second := c.Unpack()
	if len(second) != 1 {
		t.Fatalf("Unpack() returned %d records from second buffer, want 1", len(second))
	}
	if c.RawQueue().Len() != 0 {
		t.Error("raw queue should be empty after both buffers are unpacked")
	}
}

func TestUnpackTCPDropsTrailingPartialRecord(t *testing.T) {
	desc := testDescriptor(t)
	c := New(nil)
	c.Configure(subsystem.Endpoint{Protocol: subsystem.ProtocolTCP}, "Raw", desc)

	rec, err := schema.Pack(desc, []any{uint64(9), float32(0), "dddd"})
	if err != nil {
		t.Fatalf("schema.Pack: %v", err)
	}
	c.RawQueue().Enqueue(append(rec, 0x01, 0x02, 0x03))

	ready := c.Unpack()
	if len(ready) != 1 {
		t.Fatalf("Unpack() returned %d records, want 1 (trailing partial bytes dropped)", len(ready))
	}
}

func TestHandleMessageActivitySample(t *testing.T) {
	desc := testDescriptor(t)
	c := New(nil)
	c.Configure(subsystem.Endpoint{Protocol: subsystem.ProtocolMQTT}, "Raw", desc)

	c.handleMessage(desc, []byte("1,1.0,a\n2,2.0,b\n"))

	if got := c.activity.DrainSum(); got != 2 {
		t.Errorf("activity sample = %d, want 2", got)
	}
}
