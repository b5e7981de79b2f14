package egress

import (
	"strings"
	"testing"

	"github.com/RaedanWulfe/oddimorf/internal/pipe"
	"github.com/RaedanWulfe/oddimorf/internal/schema"
)

func TestDeriveKey(t *testing.T) {
	cases := map[string]string{
		"Chains/c1/SubSystems/m/Data/Raw/Records": "Raw",
		"a/b":           "a",
		"just-a-string": "just-a-string",
	}
	for topic, want := range cases {
		if got := deriveKey(topic); got != want {
			t.Errorf("deriveKey(%q) = %q, want %q", topic, got, want)
		}
	}
}

func TestEncodeCSVQuoting(t *testing.T) {
	desc, err := schema.Parse("uint32,string_8")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	records := []pipe.Record{{uint32(7), "hi"}}

	payload, err := encodeCSV(desc, records)
	if err != nil {
		t.Fatalf("encodeCSV: %v", err)
	}
	line := strings.TrimSpace(string(payload))
	if line != `7,"hi"` {
		t.Errorf("encodeCSV = %q, want %q", line, `7,"hi"`)
	}
}

func TestEncodeCSVMultipleRows(t *testing.T) {
	desc, err := schema.Parse("uint8")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	records := []pipe.Record{{uint8(1)}, {uint8(2)}, {uint8(3)}}

	payload, err := encodeCSV(desc, records)
	if err != nil {
		t.Fatalf("encodeCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
}

func TestBlockDrainAllButOne(t *testing.T) {
	b := &block{}
	b.push([]byte("a"))
	b.push([]byte("b"))
	b.push([]byte("c"))

	got := b.drainAllButOne()
	if len(got) != 2 {
		t.Fatalf("drainAllButOne returned %d, want 2", len(got))
	}
	if len(b.payloads) != 1 {
		t.Fatalf("expected 1 trailing payload, got %d", len(b.payloads))
	}
}

func TestWritePhaseProducesPayload(t *testing.T) {
	desc, err := schema.Parse("uint32")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := pipe.New(desc)
	for i := 0; i < 5; i++ {
		p.Enqueue(pipe.Record{uint32(i)})
	}

	c := New(nil)
	c.blocks = map[string]*block{"k": {}}
	c.writePhase("k", p)

	if p.Len() != 0 {
		t.Errorf("writePhase should drain the pipe, %d remain", p.Len())
	}
	if len(c.blocks["k"].payloads) == 0 {
		t.Error("expected at least one payload pushed to the block")
	}
}

func TestEstimateEntrySize(t *testing.T) {
	desc, err := schema.Parse("uint32,string_8")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	n := estimateEntrySize(desc, pipe.Record{uint32(123), "abcdefgh"})
	if n <= 0 {
		t.Errorf("estimateEntrySize = %d, want > 0", n)
	}
}
