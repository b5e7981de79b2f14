package schema

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		tokens  string
		size    int
		wantErr bool
	}{
		{"single bool", "bool", 1, false},
		{"mixed fixed", "uint8,int16,uint32,int64,float,double", 1 + 2 + 4 + 8 + 4 + 8, false},
		{"default string width", "string", defaultStringWidth, false},
		{"sized string", "string_12", 12, false},
		{"compound", "uint64,string_8,bool", 8 + 8 + 1, false},
		{"unknown token", "nope", 0, true},
		{"bad string suffix", "string_abc", 0, true},
		{"empty token", "uint8,,int8", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Parse(tc.tokens)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q): expected error, got nil", tc.tokens)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", tc.tokens, err)
			}
			if d.Size != tc.size {
				t.Errorf("Parse(%q).Size = %d, want %d", tc.tokens, d.Size, tc.size)
			}
		})
	}
}

func TestSizeOf(t *testing.T) {
	n, err := SizeOf("uint32,uint32")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 8 {
		t.Errorf("SizeOf = %d, want 8", n)
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	d, err := Parse("bool,char,int8,uint8,int16,uint16,int32,uint32,int64,uint64,float,double,string_10")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	values := []any{
		true,
		int8(-7),
		int8(-100),
		uint8(200),
		int16(-1000),
		uint16(60000),
		int32(-100000),
		uint32(4000000000),
		int64(-9000000000000),
		uint64(18000000000000000000),
		float32(3.5),
		float64(2.718281828),
		"hello",
	}

	buf, err := Pack(d, values)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(buf) != d.Size {
		t.Fatalf("Pack produced %d bytes, want %d", len(buf), d.Size)
	}

	got, err := Unpack(d, buf)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if got[0].(bool) != true {
		t.Errorf("field 0: got %v", got[0])
	}
	if got[12].(string) != "hello" {
		t.Errorf("field 12 (string): got %q, want %q", got[12], "hello")
	}

	// Re-pack the unpacked values and confirm byte-identical output,
	// the round-trip property from the testable-properties list.
	buf2, err := Pack(d, got)
	if err != nil {
		t.Fatalf("re-Pack: %v", err)
	}
	if !reflect.DeepEqual(buf, buf2) {
		t.Errorf("round trip mismatch:\n  first:  %v\n  second: %v", buf, buf2)
	}
}

func TestUnpackStringTruncatesAtNull(t *testing.T) {
	d, err := Parse("string_8")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	buf, err := Pack(d, []any{"hi"})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	got, err := Unpack(d, buf)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got[0].(string) != "hi" {
		t.Errorf("got %q, want %q", got[0], "hi")
	}
}

func TestPackWrongArity(t *testing.T) {
	d, err := Parse("uint8,uint8")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Pack(d, []any{uint8(1)}); err == nil {
		t.Error("expected error for wrong value count")
	}
}

func TestUnpackShortBuffer(t *testing.T) {
	d, err := Parse("uint32,uint32")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Unpack(d, []byte{1, 2, 3}); err == nil {
		t.Error("expected error for short buffer")
	}
}
