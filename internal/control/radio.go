package control

import "encoding/json"

// radioDataLength is the fixed memory-map width of a Radio, in bytes
// (spec §3: "map width 8 bytes").
const radioDataLength = 8

// Radio is an ordered item list with one selected index.
type Radio struct {
	base
	items    []string
	selected int64
}

// NewRadio constructs a Radio control with its item list and initial
// selection.
func NewRadio(uid, label string, items []string, selected int64) *Radio {
	r := &Radio{base: newBase(uid, label), items: append([]string(nil), items...), selected: selected}
	r.setMapWidth(radioDataLength)
	return r
}

func (r *Radio) Type() Type      { return TypeRadio }
func (r *Radio) DataLength() int { return radioDataLength }

// Selected returns the index of the currently selected item.
func (r *Radio) Selected() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Items returns a copy of the current item list.
func (r *Radio) Items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

type radioPayload struct {
	Type     string   `json:"type"`
	Label    string   `json:"label"`
	Selected int64    `json:"selected"`
	Items    []string `json:"items"`
}

func (r *Radio) Decode(payload []byte) bool {
	if !checkTag(payload, TypeRadio, peekType(payload)) {
		return false
	}

	var p radioPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}

	r.mu.Lock()
	r.items = p.Items
	r.selected = p.Selected
	r.mu.Unlock()

	r.markReceived()
	return true
}

func (r *Radio) Encode() ([]byte, error) {
	r.mu.Lock()
	p := radioPayload{Type: string(TypeRadio), Label: r.label, Selected: r.selected, Items: append([]string(nil), r.items...)}
	r.mu.Unlock()
	return json.Marshal(p)
}

func (r *Radio) WriteToMap(buf []byte) error {
	r.mu.Lock()
	start, end, selected := r.startPos, r.endPos, r.selected
	r.mu.Unlock()
	return writeInt64(buf, start, end, selected)
}
