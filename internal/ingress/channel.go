// Package ingress implements the subsystem's inbound data-plane channel:
// an MQTT(S) CSV subscriber or a TCP binary sink, feeding parsed records
// into a stream pipe for user code to consume.
//
// Grounded on radar_subsystem/components/input_channel.py. The autopaho
// connection lifecycle (ClientConfig, OnConnectionUp/OnConnectError, TLS
// for mqtts://, AwaitConnection) is adapted from the teacher's
// internal/mqtt/publisher.go.
package ingress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/RaedanWulfe/oddimorf/internal/genid"
	"github.com/RaedanWulfe/oddimorf/internal/pipe"
	"github.com/RaedanWulfe/oddimorf/internal/schema"
	"github.com/RaedanWulfe/oddimorf/internal/subsystem"
)

// Suspension intervals named in spec §5.
const (
	readInterval                = 100 * time.Millisecond
	cancellationCheckInterval   = 1 * time.Second
	forcedQueueCleanupInterval  = 500 * time.Millisecond
	workerJoinTimeout           = 2 * time.Second
)

// Channel is the ingress side of the data plane: one endpoint, one
// active stream key, and the pipe records are delivered to (spec §3
// "Ingress channel").
type Channel struct {
	logger *slog.Logger

	mu         sync.RWMutex
	endpoint   subsystem.Endpoint
	streamKey  string
	descriptor schema.Descriptor
	queue      *pipe.Pipe // MQTT: already-parsed record tuples
	rawQueue   *rawFIFO   // TCP: raw buffers, one per read (spec §4.4)

	activity subsystem.ActivityQueue

	statusMu sync.RWMutex
	status   subsystem.Status

	token      genid.Token
	workerDone chan struct{}

	purgeMu  sync.Mutex
	purging  bool
}

// New creates an unconfigured, stopped ingress channel.
func New(logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{logger: logger}
}

// Configure assigns a new endpoint, stream key, and record descriptor.
// The controller is expected to Halt (and, outside a reconfigure burst,
// Stop) the channel before calling Configure, per spec §3's invariant
// that reconfiguration while running must cleanly stop the prior worker.
func (c *Channel) Configure(ep subsystem.Endpoint, streamKey string, desc schema.Descriptor) {
	c.mu.Lock()
	c.endpoint = ep
	c.streamKey = streamKey
	c.descriptor = desc
	c.queue = pipe.New(desc)
	c.rawQueue = newRawFIFO()
	c.mu.Unlock()
}

// Endpoint returns the currently configured endpoint.
func (c *Channel) Endpoint() subsystem.Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// StreamKey returns the currently configured active stream key.
func (c *Channel) StreamKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamKey
}

// Queue returns the pipe records are delivered to. May change identity
// across a Configure call, per spec §5 ("readers must tolerate these
// changing between calls to unpack()") — callers should re-fetch it
// rather than caching a reference across a reconfigure.
func (c *Channel) Queue() *pipe.Pipe {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue
}

// RawQueue returns the FIFO of raw TCP read buffers. May change identity
// across a Configure call, like Queue.
func (c *Channel) RawQueue() *rawFIFO {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rawQueue
}

// Activity returns the channel's activity-sample queue, fed to the
// controller's rate window.
func (c *Channel) Activity() *subsystem.ActivityQueue {
	return &c.activity
}

// Status reports the channel's current aggregate status.
func (c *Channel) Status() subsystem.Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Channel) setStatus(s subsystem.Status) {
	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
}

// IsStarted reports whether a worker is currently (meant to be) running.
func (c *Channel) IsStarted() bool {
	return c.token.IsStarted()
}

// Unpack returns records currently ready for consumption by user code,
// per spec §4.4's unpack() contract. For an MQTT endpoint the queue
// already holds parsed rows; up to (qsize-1) are returned, the trailing
// element retained to avoid racing an in-flight append by the subscriber
// callback. For a TCP endpoint the queue holds raw buffers: one buffer
// is popped from the head and iterated into zero or more complete
// records using the configured record descriptor; any trailing bytes
// that don't fill a whole record are dropped with a warning (the
// original's struct.iter_unpack has no notion of a partial record
// either).
func (c *Channel) Unpack() []pipe.Record {
	if c.Endpoint().Protocol.IsMQTT() {
		q := c.Queue()
		if q == nil {
			return nil
		}
		return q.DequeueAllButOne()
	}

	rq := c.RawQueue()
	if rq == nil {
		return nil
	}
	buf, ok := rq.Dequeue()
	if !ok {
		return nil
	}
	return c.decodeBuffer(buf)
}

// decodeBuffer iterates complete desc.Size-byte records out of buf, per
// spec §4.4's TCP unpack() contract.
func (c *Channel) decodeBuffer(buf []byte) []pipe.Record {
	desc := c.currentDescriptor()
	if desc.Size == 0 {
		return nil
	}

	var out []pipe.Record
	for off := 0; off+desc.Size <= len(buf); off += desc.Size {
		values, err := schema.Unpack(desc, buf[off:off+desc.Size])
		if err != nil {
			c.logger.Warn("ingress tcp: unpack failed, dropping record", "error", err)
			continue
		}
		out = append(out, pipe.Record(values))
	}
	if rem := len(buf) % desc.Size; rem != 0 {
		c.logger.Warn("ingress tcp: buffer does not end on a record boundary, dropping trailing bytes", "trailing_bytes", rem)
	}
	return out
}

// Halt cancels the current worker's generation without joining it. Used
// by the controller when reconfiguring the endpoint mid-flight; the
// worker notices at its next suspension point and exits on its own.
func (c *Channel) Halt() {
	c.token.Stop()
}

// Start spawns a fresh transport worker for the channel's current
// endpoint. If the endpoint's protocol is not recognized, the channel's
// status is set to FAILURE and no worker is started (spec §4.4 failure
// semantics).
func (c *Channel) Start(ctx context.Context) {
	ep := c.Endpoint()
	snap := c.token.Start()
	done := make(chan struct{})
	c.workerDone = done

	go func() {
		defer close(done)
		switch {
		case ep.Protocol.IsMQTT():
			c.runMQTT(ctx, snap, ep)
		case ep.Protocol == subsystem.ProtocolTCP:
			c.runTCP(ctx, snap, ep)
		default:
			c.logger.Error("ingress: unknown protocol, refusing to start", "protocol", ep.Protocol.String())
			c.setStatus(subsystem.StatusFailure)
		}
	}()
}

// Stop halts the current worker, joins it with a bounded timeout, and
// launches a background purge loop that empties the queue every
// FORCED_QUEUE_CLEANUP_INTERVAL until the next Start (spec §4.4, §5).
func (c *Channel) Stop() {
	c.token.Stop()

	done := c.workerDone
	if done != nil {
		select {
		case <-done:
		case <-time.After(workerJoinTimeout):
			c.logger.Warn("ingress: worker join timed out, abandoning")
		}
	}

	c.startPurge()
}

func (c *Channel) startPurge() {
	c.purgeMu.Lock()
	if c.purging {
		c.purgeMu.Unlock()
		return
	}
	c.purging = true
	c.purgeMu.Unlock()

	go func() {
		ticker := time.NewTicker(forcedQueueCleanupInterval)
		defer ticker.Stop()

		for !c.token.IsStarted() {
			if q := c.Queue(); q != nil {
				q.Drain()
			}
			if rq := c.RawQueue(); rq != nil {
				rq.Drain()
			}
			<-ticker.C
		}

		c.purgeMu.Lock()
		c.purging = false
		c.purgeMu.Unlock()
	}()
}
