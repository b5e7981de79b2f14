package egress

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/RaedanWulfe/oddimorf/internal/genid"
	"github.com/RaedanWulfe/oddimorf/internal/pipe"
	"github.com/RaedanWulfe/oddimorf/internal/schema"
	"github.com/RaedanWulfe/oddimorf/internal/subsystem"
)

// runTCP opens a client connection to ep.Address:ep.Port for the single
// configured topic's pipe, and reconnects on any error after
// CONNECTION_RETRY_INTERVAL (spec §4.5 "TCP sender").
func (c *Channel) runTCP(ctx context.Context, snap genid.Snapshot, ep subsystem.Endpoint) {
	if len(ep.Topics) == 0 {
		c.logger.Error("egress tcp: no topic configured, refusing to start")
		c.setStatus(subsystem.StatusFailure)
		return
	}
	key := deriveKey(ep.Topics[0])

	c.mu.RLock()
	pipes := c.pipes
	c.mu.RUnlock()

	p, ok := pipes.Get(key)
	if !ok {
		c.logger.Error("egress tcp: no pipe registered for key", "key", key)
		c.setStatus(subsystem.StatusFailure)
		return
	}
	desc := p.Descriptor()
	addr := fmt.Sprintf("%s:%d", ep.Address, ep.Port)

	for c.token.Valid(snap) {
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			c.logger.Warn("egress tcp: dial failed, retrying", "addr", addr, "error", err)
			c.setStatus(subsystem.StatusCaution)
			if !sleepOrDone(ctx, connectionRetryInterval) {
				return
			}
			continue
		}

		c.setStatus(subsystem.StatusOperational)
		c.writeLoop(ctx, snap, conn, p, desc)
		conn.Close()

		if !c.token.Valid(snap) {
			return
		}
		c.logger.Warn("egress tcp: connection lost, reconnecting")
		if !sleepOrDone(ctx, connectionRetryInterval) {
			return
		}
	}
}

// writeLoop packs and writes each record as it becomes available, idle
// polling at RECHECK_DATA_IN_QUEUE_INTERVAL, until an error occurs or the
// worker's generation is superseded.
func (c *Channel) writeLoop(ctx context.Context, snap genid.Snapshot, conn net.Conn, p *pipe.Pipe, desc schema.Descriptor) {
	ticker := time.NewTicker(rechecDataInQueueInterval)
	defer ticker.Stop()

	for c.token.Valid(snap) {
		n := p.Len()
		if n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		records := p.DequeueUpTo(n)
		for _, r := range records {
			buf, err := schema.Pack(desc, r)
			if err != nil {
				c.logger.Warn("egress tcp: pack failed, dropping record", "error", err)
				continue
			}
			if _, err := conn.Write(buf); err != nil {
				return
			}
		}
		c.activity.Sample(len(records))
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
