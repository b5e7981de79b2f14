package ingress

import "sync"

// rawFIFO is an unbounded, mutex-guarded FIFO of raw byte buffers: the
// TCP sink's queue, one entry per accepted read (spec §4.4: "the queue
// holds raw buffers"). This is distinct from the MQTT path's queue of
// already-parsed record tuples, matching the original's single
// queue.SimpleQueue holding whichever shape its own transport produces.
type rawFIFO struct {
	mu      sync.Mutex
	buffers [][]byte
}

func newRawFIFO() *rawFIFO {
	return &rawFIFO{}
}

// Enqueue appends one buffer. Never blocks.
func (q *rawFIFO) Enqueue(buf []byte) {
	q.mu.Lock()
	q.buffers = append(q.buffers, buf)
	q.mu.Unlock()
}

// Dequeue removes and returns the oldest buffer, if any.
func (q *rawFIFO) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buffers) == 0 {
		return nil, false
	}
	b := q.buffers[0]
	q.buffers = q.buffers[1:]
	return b, true
}

// Len reports the number of buffers currently queued.
func (q *rawFIFO) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffers)
}

// Drain removes every queued buffer and reports how many were removed.
func (q *rawFIFO) Drain() int {
	q.mu.Lock()
	n := len(q.buffers)
	q.buffers = nil
	q.mu.Unlock()
	return n
}
