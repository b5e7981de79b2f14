package control

import "encoding/json"

// ToggleItem is one entry of a CheckBox: a label and its checked state.
type ToggleItem struct {
	Label     string `json:"label"`
	IsChecked bool   `json:"isChecked"`
}

// CheckBox is an ordered list of independently toggleable items. Its
// memory-map width is the item count, one byte per item (spec §3).
type CheckBox struct {
	base
	items []ToggleItem
}

// NewCheckBox constructs a CheckBox control with its initial item list.
func NewCheckBox(uid, label string, items []ToggleItem) *CheckBox {
	c := &CheckBox{base: newBase(uid, label), items: append([]ToggleItem(nil), items...)}
	c.setMapWidth(len(items))
	return c
}

func (c *CheckBox) Type() Type { return TypeCheckBox }

func (c *CheckBox) DataLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Items returns a copy of the current item list.
func (c *CheckBox) Items() []ToggleItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ToggleItem(nil), c.items...)
}

type checkBoxPayload struct {
	Type  string       `json:"type"`
	Label string       `json:"label"`
	Items []ToggleItem `json:"items"`
}

func (c *CheckBox) Decode(payload []byte) bool {
	if !checkTag(payload, TypeCheckBox, peekType(payload)) {
		return false
	}

	var p checkBoxPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}

	c.mu.Lock()
	c.items = p.Items
	width := len(c.items)
	c.endPos = c.startPos + width
	c.mu.Unlock()

	c.markReceived()
	return true
}

func (c *CheckBox) Encode() ([]byte, error) {
	c.mu.Lock()
	p := checkBoxPayload{Type: string(TypeCheckBox), Label: c.label, Items: append([]ToggleItem(nil), c.items...)}
	c.mu.Unlock()
	return json.Marshal(p)
}

func (c *CheckBox) WriteToMap(buf []byte) error {
	c.mu.Lock()
	start, end, items := c.startPos, c.endPos, append([]ToggleItem(nil), c.items...)
	c.mu.Unlock()

	if end > len(buf) || start < 0 || end-start != len(items) {
		return errMapRange(start, end, len(buf))
	}
	for i, item := range items {
		if item.IsChecked {
			buf[start+i] = 1
		} else {
			buf[start+i] = 0
		}
	}
	return nil
}
