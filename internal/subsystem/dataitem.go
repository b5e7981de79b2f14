package subsystem

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/RaedanWulfe/oddimorf/internal/schema"
)

// dataItemInitDeadlineInterval mirrors control's initialization deadline
// (spec §3: "Has the same initialization-deadline concept as a control").
const dataItemInitDeadlineInterval = 2 * time.Second

// DataItem self-describes one produced stream: its key and schema, as
// published on a Data/<key>/Interpretation topic (spec §3, glossary).
type DataItem struct {
	mu sync.Mutex

	key       string
	dataTypes string
	desc      schema.Descriptor

	initialized bool
	deadline    time.Time

	callbacks []func()
}

// NewDataItem builds a DataItem from a configured key and field-type
// token list. Returns an error if the token list fails schema.Parse
// (spec §7: "Schema error ... fatal at channel configure").
func NewDataItem(key, dataTypes string) (*DataItem, error) {
	desc, err := schema.Parse(dataTypes)
	if err != nil {
		return nil, err
	}
	return &DataItem{
		key:       key,
		dataTypes: dataTypes,
		desc:      desc,
		deadline:  time.Now().Add(dataItemInitDeadlineInterval),
	}, nil
}

// Key returns the stream key this item describes.
func (d *DataItem) Key() string { return d.key }

// Descriptor returns the parsed record layout for this item's schema.
func (d *DataItem) Descriptor() schema.Descriptor { return d.desc }

type dataItemPayload struct {
	Key       string `json:"key"`
	DataTypes string `json:"dataTypes"`
}

// Encode renders this item's self-description for publication on its
// Interpretation topic.
func (d *DataItem) Encode() ([]byte, error) {
	d.mu.Lock()
	p := dataItemPayload{Key: d.key, DataTypes: d.dataTypes}
	d.mu.Unlock()
	return json.Marshal(p)
}

// Decode applies an inbound Interpretation payload matching this item's
// key. Returns false without changing state if payload is empty or its
// key doesn't match.
func (d *DataItem) Decode(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}

	var p dataItemPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Key != d.key {
		return false
	}

	d.mu.Lock()
	d.initialized = true
	callbacks := make([]func(), len(d.callbacks))
	copy(callbacks, d.callbacks)
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return true
}

// NeedsInitialization reports whether this item has never been
// interpreted downstream and its deadline has elapsed as of now.
func (d *DataItem) NeedsInitialization(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.initialized && !d.deadline.After(now)
}

// ResetDeadline pushes the initialization deadline forward from now.
func (d *DataItem) ResetDeadline(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deadline = now.Add(dataItemInitDeadlineInterval)
}

// OnReceived registers fn to be called after every successful Decode.
func (d *DataItem) OnReceived(fn func()) {
	d.mu.Lock()
	d.callbacks = append(d.callbacks, fn)
	d.mu.Unlock()
}
