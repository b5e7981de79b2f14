// Package schema parses the declarative record field-type vocabulary used
// throughout the subsystem (data schema entries, ingress/egress record
// layouts) into little-endian binary pack/unpack descriptors.
//
// Grounded on radar_subsystem/base.py's dataTypesToFormat/dataTypesToSize,
// generalized from Python struct format strings to a Go byte-order codec.
package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies one of the fixed vocabulary of field types.
type Kind int

const (
	KindBool Kind = iota
	KindChar
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat
	KindDouble
	KindString
)

// defaultStringWidth is the fixed width used for the bare "string" token
// when no "_N" suffix is present.
const defaultStringWidth = 256

var fixedSizes = map[Kind]int{
	KindBool:   1,
	KindChar:   1,
	KindInt8:   1,
	KindUint8:  1,
	KindInt16:  2,
	KindUint16: 2,
	KindInt32:  4,
	KindUint32: 4,
	KindInt64:  8,
	KindUint64: 8,
	KindFloat:  4,
	KindDouble: 8,
}

var tokenKinds = map[string]Kind{
	"bool":   KindBool,
	"char":   KindChar,
	"int8":   KindInt8,
	"uint8":  KindUint8,
	"int16":  KindInt16,
	"uint16": KindUint16,
	"int32":  KindInt32,
	"uint32": KindUint32,
	"int64":  KindInt64,
	"uint64": KindUint64,
	"float":  KindFloat,
	"double": KindDouble,
	"string": KindString,
}

// Error is returned when a field token is not in the fixed vocabulary.
type Error struct {
	Token string
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema: unknown field token %q", e.Token)
}

// Field describes one field of a record: its kind, its token as written in
// configuration, and its byte width.
type Field struct {
	Kind  Kind
	Token string
	Size  int
}

// Descriptor is the little-endian binary layout produced for an ordered
// list of field tokens: the per-field descriptors and the total record
// size. It is the direct analog of a Python struct format string plus its
// calcsize().
type Descriptor struct {
	Fields []Field
	Size   int
}

// parseToken splits a single field token (e.g. "uint64", "string_12")
// into its Kind and byte width.
func parseToken(token string) (Kind, int, error) {
	parts := strings.SplitN(token, "_", 2)
	base := parts[0]

	kind, ok := tokenKinds[base]
	if !ok {
		return 0, 0, &Error{Token: token}
	}

	if kind == KindString {
		if len(parts) == 2 {
			n, err := strconv.Atoi(parts[1])
			if err != nil || n <= 0 {
				return 0, 0, &Error{Token: token}
			}
			return kind, n, nil
		}
		return kind, defaultStringWidth, nil
	}

	return kind, fixedSizes[kind], nil
}

// Parse converts a comma-separated field-type token list into a
// Descriptor. Returns a *Error if any token is not in the fixed
// vocabulary (spec §4.1: construction fails with SchemaError).
func Parse(tokens string) (Descriptor, error) {
	raw := strings.Split(strings.TrimSpace(tokens), ",")
	fields := make([]Field, 0, len(raw))
	total := 0

	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			return Descriptor{}, &Error{Token: tokens}
		}
		kind, size, err := parseToken(t)
		if err != nil {
			return Descriptor{}, err
		}
		fields = append(fields, Field{Kind: kind, Token: t, Size: size})
		total += size
	}

	return Descriptor{Fields: fields, Size: total}, nil
}

// SizeOf returns the total record byte size for a token list, without
// retaining the per-field descriptors.
func SizeOf(tokens string) (int, error) {
	d, err := Parse(tokens)
	if err != nil {
		return 0, err
	}
	return d.Size, nil
}

// Pack encodes one record's field values into its little-endian wire
// representation per d. values must have exactly len(d.Fields) elements,
// one per field, in the Go type matching its Kind (bool, byte/int8,
// uint8, int16, uint16, int32, uint32, int64, uint64, float32, float64,
// string).
func Pack(d Descriptor, values []any) ([]byte, error) {
	if len(values) != len(d.Fields) {
		return nil, fmt.Errorf("schema: expected %d values, got %d", len(d.Fields), len(values))
	}

	buf := make([]byte, d.Size)
	offset := 0
	for i, f := range d.Fields {
		n, err := packField(buf[offset:], f, values[i])
		if err != nil {
			return nil, fmt.Errorf("schema: field %d (%s): %w", i, f.Token, err)
		}
		offset += n
	}
	return buf, nil
}

func packField(dst []byte, f Field, value any) (int, error) {
	switch f.Kind {
	case KindBool:
		v, ok := value.(bool)
		if !ok {
			return 0, fmt.Errorf("expected bool, got %T", value)
		}
		if v {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
		return 1, nil
	case KindChar, KindInt8:
		v, err := toInt64(value)
		if err != nil {
			return 0, err
		}
		dst[0] = byte(int8(v))
		return 1, nil
	case KindUint8:
		v, err := toInt64(value)
		if err != nil {
			return 0, err
		}
		dst[0] = byte(uint8(v))
		return 1, nil
	case KindInt16:
		v, err := toInt64(value)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
		return 2, nil
	case KindUint16:
		v, err := toInt64(value)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint16(dst, uint16(v))
		return 2, nil
	case KindInt32:
		v, err := toInt64(value)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
		return 4, nil
	case KindUint32:
		v, err := toInt64(value)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(dst, uint32(v))
		return 4, nil
	case KindInt64:
		v, err := toInt64(value)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint64(dst, uint64(v))
		return 8, nil
	case KindUint64:
		v, err := toUint64(value)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint64(dst, v)
		return 8, nil
	case KindFloat:
		v, err := toFloat64(value)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
		return 4, nil
	case KindDouble:
		v, err := toFloat64(value)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
		return 8, nil
	case KindString:
		s, ok := value.(string)
		if !ok {
			return 0, fmt.Errorf("expected string, got %T", value)
		}
		b := []byte(s)
		if len(b) > f.Size {
			b = b[:f.Size]
		}
		copy(dst[:f.Size], b)
		for i := len(b); i < f.Size; i++ {
			dst[i] = 0
		}
		return f.Size, nil
	default:
		return 0, fmt.Errorf("unhandled kind %d", f.Kind)
	}
}

// Unpack decodes one record's worth of bytes per d, returning one value
// per field in the same Go type conventions as Pack. String fields are
// C-string terminated: truncated at the first zero byte.
func Unpack(d Descriptor, data []byte) ([]any, error) {
	if len(data) < d.Size {
		return nil, fmt.Errorf("schema: short record, need %d bytes, got %d", d.Size, len(data))
	}

	values := make([]any, len(d.Fields))
	offset := 0
	for i, f := range d.Fields {
		v, n := unpackField(data[offset:], f)
		values[i] = v
		offset += n
	}
	return values, nil
}

func unpackField(src []byte, f Field) (any, int) {
	switch f.Kind {
	case KindBool:
		return src[0] != 0, 1
	case KindChar, KindInt8:
		return int8(src[0]), 1
	case KindUint8:
		return uint8(src[0]), 1
	case KindInt16:
		return int16(binary.LittleEndian.Uint16(src)), 2
	case KindUint16:
		return binary.LittleEndian.Uint16(src), 2
	case KindInt32:
		return int32(binary.LittleEndian.Uint32(src)), 4
	case KindUint32:
		return binary.LittleEndian.Uint32(src), 4
	case KindInt64:
		return int64(binary.LittleEndian.Uint64(src)), 8
	case KindUint64:
		return binary.LittleEndian.Uint64(src), 8
	case KindFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(src)), 4
	case KindDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(src)), 8
	case KindString:
		raw := src[:f.Size]
		if n := indexByte(raw, 0); n >= 0 {
			raw = raw[:n]
		}
		return string(raw), f.Size
	default:
		return nil, f.Size
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// IsNumeric reports whether a field's CSV representation should be
// written unquoted. Every token in the fixed vocabulary is numeric
// except string fields (spec §4.5: "numeric fields unquoted, non-numeric
// quoted").
func (f Field) IsNumeric() bool {
	return f.Kind != KindString
}

// ParseField converts one CSV cell's text into the Go value a Pack call
// expects for this field (the ingress MQTT CSV path, spec §4.4).
func ParseField(f Field, s string) (any, error) {
	switch f.Kind {
	case KindBool:
		return strconv.ParseBool(s)
	case KindChar, KindInt8:
		n, err := strconv.ParseInt(s, 10, 8)
		return int8(n), err
	case KindUint8:
		n, err := strconv.ParseUint(s, 10, 8)
		return uint8(n), err
	case KindInt16:
		n, err := strconv.ParseInt(s, 10, 16)
		return int16(n), err
	case KindUint16:
		n, err := strconv.ParseUint(s, 10, 16)
		return uint16(n), err
	case KindInt32:
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	case KindUint32:
		n, err := strconv.ParseUint(s, 10, 32)
		return uint32(n), err
	case KindInt64:
		return strconv.ParseInt(s, 10, 64)
	case KindUint64:
		return strconv.ParseUint(s, 10, 64)
	case KindFloat:
		n, err := strconv.ParseFloat(s, 32)
		return float32(n), err
	case KindDouble:
		return strconv.ParseFloat(s, 64)
	case KindString:
		return s, nil
	default:
		return nil, fmt.Errorf("unhandled kind %d", f.Kind)
	}
}

// FormatField renders a Go value as its CSV cell text (the egress CSV
// writer path, spec §4.5).
func FormatField(f Field, v any) (string, error) {
	switch f.Kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("expected bool, got %T", v)
		}
		return strconv.FormatBool(b), nil
	case KindString:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case KindFloat, KindDouble:
		f64, err := toFloat64(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f64, 'g', -1, 64), nil
	default:
		if n, err := toUint64(v); err == nil {
			if isUnsignedKind(f.Kind) {
				return strconv.FormatUint(n, 10), nil
			}
		}
		n, err := toInt64(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	}
}

func isUnsignedKind(k Kind) bool {
	switch k {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	default:
		return false
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		i, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("expected float, got %T", v)
		}
		return float64(i), nil
	}
}
