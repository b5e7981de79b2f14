// Package egress implements the subsystem's outbound data-plane channel:
// an MQTT(S) CSV publisher (bounded worker pool) or a TCP client sender,
// draining one or more stream pipes.
//
// Grounded on radar_subsystem/components/output_channel.py. The bounded
// encoding worker pool uses golang.org/x/sync/semaphore, grounded on the
// same dependency in the example pack's ticdc and redb-open repos.
package egress

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/RaedanWulfe/oddimorf/internal/genid"
	"github.com/RaedanWulfe/oddimorf/internal/pipe"
	"github.com/RaedanWulfe/oddimorf/internal/subsystem"
)

// Suspension intervals and protocol constants named in spec §5.
const (
	mqttSendInterval            = 250 * time.Millisecond
	cancellationCheckInterval   = 1 * time.Second
	connectionRetryInterval     = 2 * time.Second
	rechecDataInQueueInterval   = 50 * time.Millisecond
	workerJoinTimeout           = 2 * time.Second

	maxSendBlockByteSize = 16384
	maxEncodeWorkers     = 8
)

// block is the reusable CSV payload FIFO for one output topic/key (spec
// §4.5: "a reusable text buffer and a FIFO of ready-to-publish payloads").
type block struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *block) push(p []byte) {
	b.mu.Lock()
	b.payloads = append(b.payloads, p)
	b.mu.Unlock()
}

// drainAllButOne returns every queued payload except the newest, mirroring
// the ingress unpack() contract: the trailing payload is left in case the
// background write phase is still appending to this block concurrently.
func (b *block) drainAllButOne() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.payloads) <= 1 {
		return nil
	}
	n := len(b.payloads) - 1
	out := make([][]byte, n)
	copy(out, b.payloads[:n])
	b.payloads = b.payloads[n:]
	return out
}

// Channel is the egress side of the data plane: one endpoint and an
// ordered set of output stream pipes (spec §3 "Egress channel").
type Channel struct {
	logger *slog.Logger

	mu       sync.RWMutex
	endpoint subsystem.Endpoint
	pipes    *pipe.Set
	topics   map[string]string // stream key -> full topic string

	blocksMu sync.Mutex
	blocks   map[string]*block

	activity subsystem.ActivityQueue

	statusMu sync.RWMutex
	status   subsystem.Status

	token      genid.Token
	workerDone chan struct{}

	purgeMu sync.Mutex
	purging bool
}

// New creates an unconfigured, stopped egress channel.
func New(logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{logger: logger, blocks: make(map[string]*block)}
}

// Configure assigns a new endpoint and the set of output pipes it will
// drain. topics maps each pipe's stream key to its full publish topic
// (MQTT) or holds a single entry for the TCP sender's one configured
// topic.
func (c *Channel) Configure(ep subsystem.Endpoint, pipes *pipe.Set, topics map[string]string) {
	c.mu.Lock()
	c.endpoint = ep
	c.pipes = pipes
	c.topics = topics
	c.mu.Unlock()

	c.blocksMu.Lock()
	c.blocks = make(map[string]*block)
	for key := range topics {
		c.blocks[key] = &block{}
	}
	c.blocksMu.Unlock()
}

// Endpoint returns the currently configured endpoint.
func (c *Channel) Endpoint() subsystem.Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// Activity returns the channel's activity-sample queue.
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

// Halt cancels the current worker's generation without joining it.
func (c *Channel) Halt() {
	c.token.Stop()
}

// Start spawns a fresh transport worker for the channel's current
// endpoint.
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
			c.logger.Error("egress: unknown protocol, refusing to start", "protocol", ep.Protocol.String())
			c.setStatus(subsystem.StatusFailure)
		}
	}()
}

// Stop halts the current worker, joins it with a bounded timeout, and
// launches a background purge loop over every configured pipe until the
// next Start.
func (c *Channel) Stop() {
	c.token.Stop()

	done := c.workerDone
	if done != nil {
		select {
		case <-done:
		case <-time.After(workerJoinTimeout):
			c.logger.Warn("egress: worker join timed out, abandoning")
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
		ticker := time.NewTicker(forcedQueueCleanupInterval())
		defer ticker.Stop()

		for !c.token.IsStarted() {
			c.drainAllPipes()
			<-ticker.C
		}

		c.purgeMu.Lock()
		c.purging = false
		c.purgeMu.Unlock()
	}()
}

func (c *Channel) drainAllPipes() {
	c.mu.RLock()
	pipes := c.pipes
	c.mu.RUnlock()
	if pipes == nil {
		return
	}
	for _, key := range pipes.Keys() {
		if p, ok := pipes.Get(key); ok {
			p.Drain()
		}
	}
}

// forcedQueueCleanupInterval matches the purge cadence named in spec §5.
func forcedQueueCleanupInterval() time.Duration {
	return 500 * time.Millisecond
}

// deriveKey extracts the stream key from a topic string by taking the
// substring between the last two '/' separators (spec §4.5).
func deriveKey(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return topic
	}
	return parts[len(parts)-2]
}
