package control

import "encoding/json"

// textBoxDataLength is the fixed memory-map width of a TextBox, in bytes
// (spec §3: "fixed map width 254 bytes").
const textBoxDataLength = 254

// TextBox is a free-text tunable value.
type TextBox struct {
	base
	value string
}

// NewTextBox constructs a TextBox control with an initial value.
func NewTextBox(uid, label, value string) *TextBox {
	t := &TextBox{base: newBase(uid, label), value: value}
	t.setMapWidth(textBoxDataLength)
	return t
}

func (t *TextBox) Type() Type      { return TypeTextBox }
func (t *TextBox) DataLength() int { return textBoxDataLength }

// Value returns the current text value.
func (t *TextBox) Value() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

type textBoxPayload struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Value string `json:"value"`
}

func (t *TextBox) Decode(payload []byte) bool {
	if !checkTag(payload, TypeTextBox, peekType(payload)) {
		return false
	}

	var p textBoxPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}

	t.mu.Lock()
	t.value = p.Value
	t.mu.Unlock()

	t.markReceived()
	return true
}

func (t *TextBox) Encode() ([]byte, error) {
	t.mu.Lock()
	p := textBoxPayload{Type: string(TypeTextBox), Label: t.label, Value: t.value}
	t.mu.Unlock()
	return json.Marshal(p)
}

func (t *TextBox) WriteToMap(buf []byte) error {
	t.mu.Lock()
	start, end, value := t.startPos, t.endPos, t.value
	t.mu.Unlock()
	return writeString(buf, start, end, value)
}

// peekType extracts the "type" field from a control JSON payload without
// fully unmarshaling into a typed struct, so Decode can reject a mismatched
// tag before attempting the variant-specific parse.
func peekType(payload []byte) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.Type
}
