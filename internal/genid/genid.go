// Package genid provides a single generation-token primitive used to
// cancel and restart a component's background loops without tearing down
// the component itself.
//
// The Python original (radar_subsystem/base.py Component) tracks this with
// two separate fields, _is_started and _loop_iteration: stop() increments
// the iteration counter and clears is_started; every loop captures the
// iteration value it was started with and checks both "is_started still
// true" and "iteration hasn't moved on" at each suspension point. Per the
// spec's Design Notes, that pair is collapsed here into one atomically
// updated token.
package genid

import "sync/atomic"

// Token is a generation counter plus a started flag, packed into a single
// atomic word so Start, Stop and Snapshot never observe a torn update.
type Token struct {
	state atomic.Uint64
}

// pack/unpack: the low bit is "started", the remaining 63 bits are the
// generation. A loop captures a Snapshot when it starts; Valid reports
// whether that exact generation is still the live, started one.
func pack(generation uint64, started bool) uint64 {
	g := generation << 1
	if started {
		g |= 1
	}
	return g
}

func unpack(state uint64) (generation uint64, started bool) {
	return state >> 1, state&1 == 1
}

// Snapshot is an immutable view of a Token captured at one instant.
type Snapshot struct {
	generation uint64
	started    bool
}

// Started reports whether the component was running when this snapshot
// was taken.
func (s Snapshot) Started() bool {
	return s.started
}

// Start advances the generation and marks the token started, invalidating
// any snapshot taken before this call. Returns the new snapshot, which a
// caller typically hands to the goroutine it is about to launch.
func (t *Token) Start() Snapshot {
	for {
		old := t.state.Load()
		oldGen, _ := unpack(old)
		newGen := oldGen + 1
		next := pack(newGen, true)
		if t.state.CompareAndSwap(old, next) {
			return Snapshot{generation: newGen, started: true}
		}
	}
}

// Stop advances the generation and marks the token stopped. Any goroutine
// holding a Snapshot from a prior Start will observe Valid() == false at
// its next check.
func (t *Token) Stop() {
	for {
		old := t.state.Load()
		oldGen, _ := unpack(old)
		newGen := oldGen + 1
		next := pack(newGen, false)
		if t.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// Snapshot captures the current generation and started flag without
// mutating the token.
func (t *Token) Snapshot() Snapshot {
	gen, started := unpack(t.state.Load())
	return Snapshot{generation: gen, started: started}
}

// Valid reports whether s is still the live snapshot for t: no Start or
// Stop has been called on t since s was captured. A running loop should
// check Valid at every suspension point and exit as soon as it is false.
func (t *Token) Valid(s Snapshot) bool {
	gen, started := unpack(t.state.Load())
	return started && gen == s.generation
}

// IsStarted reports whether the token is currently in the started state,
// independent of any particular snapshot.
func (t *Token) IsStarted() bool {
	_, started := unpack(t.state.Load())
	return started
}
