// Package control implements the four typed, broker-published tunable
// values (TextBox, Slider, Radio, CheckBox): bidirectional JSON codecs, a
// fixed-width write into a shared memory-map buffer, and the
// needs-initialization deadline that drives the controller's periodic
// republish.
//
// Grounded on radar_subsystem/controls/{textbox,slider,radio,checkbox}.py
// and base.py's Control/DataItem base classes. Per the spec's Design
// Notes §9, the Python original's process-global Observer/Event registry
// (keyed by string event name) is deliberately NOT reproduced here —
// each Control instead exposes a typed per-instance callback list.
package control

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Type identifies which of the four control variants a JSON payload or
// configuration entry describes.
type Type string

const (
	TypeTextBox  Type = "TextBox"
	TypeSlider   Type = "Slider"
	TypeRadio    Type = "Radio"
	TypeCheckBox Type = "CheckBox"
)

// initDeadlineInterval is the duration after which an uninitialized
// control is assumed absent from the broker and must be re-published
// (spec §4.2).
const initDeadlineInterval = 2 * time.Second

// Control is the common interface satisfied by all four variants.
type Control interface {
	UID() string
	Label() string
	Type() Type
	DataLength() int

	// Decode applies an inbound broker payload. It returns false without
	// changing state if payload is empty or its type tag doesn't match.
	// On a successful decode, the initialization deadline is cleared and
	// every registered OnReceived callback fires.
	Decode(payload []byte) bool

	// Encode renders the control's current value as its broker JSON
	// payload, suitable for a retained publish.
	Encode() ([]byte, error)

	// SetMapRange assigns this control's offset within the shared
	// memory-map buffer, spanning [start, start+DataLength()).
	SetMapRange(start int)
	StartPos() int
	EndPos() int

	// WriteToMap writes the control's current value into buf at
	// [StartPos(), EndPos()).
	WriteToMap(buf []byte) error

	// NeedsInitialization reports whether the control has never received
	// a broker decode and its deadline has elapsed as of now.
	NeedsInitialization(now time.Time) bool

	// ResetDeadline pushes the initialization deadline forward from now.
	// Called by the controller whenever the control is (re)published.
	ResetDeadline(now time.Time)

	// OnReceived registers fn to be called after every successful Decode.
	OnReceived(fn func())
}

// base holds the fields and behavior shared by all four variants.
type base struct {
	mu sync.Mutex

	uid   string
	label string

	startPos int
	endPos   int

	initialized bool
	deadline    time.Time

	callbacks []func()
}

func newBase(uid, label string) base {
	return base{uid: uid, label: label, deadline: time.Now().Add(initDeadlineInterval)}
}

func (b *base) UID() string   { return b.uid }
func (b *base) Label() string { return b.label }

func (b *base) SetMapRange(start int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	width := b.endPos - b.startPos
	b.startPos = start
	b.endPos = start + width
}

// setMapWidth is used by constructors to record the fixed width before
// SetMapRange has been called.
func (b *base) setMapWidth(width int) {
	b.endPos = b.startPos + width
}

func (b *base) StartPos() int { return b.startPos }
func (b *base) EndPos() int   { return b.endPos }

func (b *base) NeedsInitialization(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.initialized && !b.deadline.After(now)
}

func (b *base) ResetDeadline(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadline = now.Add(initDeadlineInterval)
}

func (b *base) OnReceived(fn func()) {
	b.mu.Lock()
	b.callbacks = append(b.callbacks, fn)
	b.mu.Unlock()
}

// markReceived flips initialized on and fires callbacks outside the lock,
// so a callback is free to call back into this control without deadlock.
func (b *base) markReceived() {
	b.mu.Lock()
	b.initialized = true
	callbacks := make([]func(), len(b.callbacks))
	copy(callbacks, b.callbacks)
	b.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// checkTag reports whether payload is non-empty and tagged with the
// expected type, per the shared decode() contract (spec §4.2: "null if
// payload empty or type tag mismatches").
func checkTag(payload []byte, want Type, tag string) bool {
	if len(payload) == 0 {
		return false
	}
	return Type(tag) == want
}

func writeInt64(buf []byte, start, end int, v int64) error {
	if end-start != 8 || end > len(buf) || start < 0 {
		return fmt.Errorf("control: map range [%d,%d) invalid for int64 field (buffer len %d)", start, end, len(buf))
	}
	binary.LittleEndian.PutUint64(buf[start:end], uint64(v))
	return nil
}

func errMapRange(start, end, bufLen int) error {
	return fmt.Errorf("control: map range [%d,%d) invalid (buffer len %d)", start, end, bufLen)
}

func writeString(buf []byte, start, end int, s string) error {
	if end > len(buf) || start < 0 || end < start {
		return fmt.Errorf("control: map range [%d,%d) invalid (buffer len %d)", start, end, len(buf))
	}
	width := end - start
	b := []byte(s)
	if len(b) > width {
		b = b[:width]
	}
	copy(buf[start:end], b)
	for i := start + len(b); i < end; i++ {
		buf[i] = 0
	}
	return nil
}
