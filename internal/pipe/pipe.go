// Package pipe implements the typed FIFO that connects a channel
// (ingress/egress) to user-written processing code, one per stream key.
//
// Grounded on radar_subsystem/components/input_channel.py and
// output_channel.py, both of which back each stream with a
// queue.SimpleQueue: a plain, lock-based, unbounded multi-producer
// multi-consumer FIFO is the direct idiomatic substitute — it matches the
// teacher's own preference (internal/mqtt/publisher.go) for a
// mutex-guarded slice over channels when producers must never block.
package pipe

import (
	"sync"

	"github.com/RaedanWulfe/oddimorf/internal/schema"
)

// Record is one tuple of decoded field values, in field order, matching a
// Pipe's Descriptor.
type Record []any

// Pipe is a single stream's FIFO of records plus the record layout used to
// pack/unpack them. Enqueue never blocks; Dequeue variants are safe for
// concurrent use by multiple producers and consumers.
type Pipe struct {
	mu         sync.Mutex
	descriptor schema.Descriptor
	records    []Record
}

// New creates an empty pipe for the given record layout.
func New(d schema.Descriptor) *Pipe {
	return &Pipe{descriptor: d}
}

// Descriptor returns the record layout this pipe was created with.
func (p *Pipe) Descriptor() schema.Descriptor {
	return p.descriptor
}

// Enqueue appends one record. Never blocks.
func (p *Pipe) Enqueue(r Record) {
	p.mu.Lock()
	p.records = append(p.records, r)
	p.mu.Unlock()
}

// Len reports the number of records currently queued.
func (p *Pipe) Len() int {
	p.mu.Lock()
	n := len(p.records)
	p.mu.Unlock()
	return n
}

// Dequeue removes and returns the oldest record, if any.
func (p *Pipe) Dequeue() (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.records) == 0 {
		return nil, false
	}
	r := p.records[0]
	p.records = p.records[1:]
	return r, true
}

// DequeueUpTo removes and returns up to n oldest records, in order. Fewer
// than n are returned if the pipe holds fewer.
func (p *Pipe) DequeueUpTo(n int) []Record {
	if n <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > len(p.records) {
		n = len(p.records)
	}
	out := make([]Record, n)
	copy(out, p.records[:n])
	p.records = p.records[n:]
	return out
}

// DequeueAllButOne drains every record except the most recently enqueued
// one, which is left in place. This is the ingress MQTT unpack() contract
// (spec §4.4): the trailing element is retained so a dequeuer never races
// an in-flight append to the same slot.
func (p *Pipe) DequeueAllButOne() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records) <= 1 {
		return nil
	}
	n := len(p.records) - 1
	out := make([]Record, n)
	copy(out, p.records[:n])
	p.records = p.records[n:]
	return out
}

// Drain removes every queued record and reports how many were removed.
// Used by the background purge loop while a channel is stopped.
func (p *Pipe) Drain() int {
	p.mu.Lock()
	n := len(p.records)
	p.records = nil
	p.mu.Unlock()
	return n
}

// Set is a named collection of pipes, keyed by stream key, as used by an
// egress channel's ordered output list (spec §3 "Egress channel").
type Set struct {
	mu    sync.RWMutex
	pipes map[string]*Pipe
	order []string
}

// NewSet creates an empty pipe set.
func NewSet() *Set {
	return &Set{pipes: make(map[string]*Pipe)}
}

// Add registers a pipe under key, preserving insertion order for Keys().
// Replaces any existing pipe under the same key without altering its
// position in the order.
func (s *Set) Add(key string, p *Pipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pipes[key]; !exists {
		s.order = append(s.order, key)
	}
	s.pipes[key] = p
}

// Get returns the pipe registered under key, if any.
func (s *Set) Get(key string) (*Pipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipes[key]
	return p, ok
}

// Keys returns the registered stream keys in insertion order.
func (s *Set) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
