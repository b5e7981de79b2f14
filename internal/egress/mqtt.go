package egress

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"golang.org/x/sync/semaphore"

	"github.com/RaedanWulfe/oddimorf/internal/genid"
	"github.com/RaedanWulfe/oddimorf/internal/pipe"
	"github.com/RaedanWulfe/oddimorf/internal/schema"
	"github.com/RaedanWulfe/oddimorf/internal/subsystem"
)

// runMQTT connects a publisher client and, every MQTT_SEND_INTERVAL,
// writes pending records as CSV payloads and sends each block's queued
// payloads to its topic (spec §4.5 "MQTT/MQTTS publisher").
func (c *Channel) runMQTT(ctx context.Context, snap genid.Snapshot, ep subsystem.Endpoint) {
	scheme := "mqtt"
	if ep.Protocol == subsystem.ProtocolMQTTS {
		scheme = "mqtts"
	}
	brokerURL, err := url.Parse(fmt.Sprintf("%s://%s:%d", scheme, ep.Address, ep.Port))
	if err != nil {
		c.logger.Error("egress mqtt: invalid broker address", "error", err)
		c.setStatus(subsystem.StatusFailure)
		return
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("egress mqtt: connected", "broker", brokerURL.String())
		},
		OnConnectError: func(err error) {
			c.logger.Warn("egress mqtt: connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "egress-" + strconv.FormatInt(time.Now().UnixNano(), 36),
		},
	}
	if ep.Protocol == subsystem.ProtocolMQTTS {
		pahoCfg.TlsCfg = &tls.Config{InsecureSkipVerify: true} // spec Non-goals: peer verification intentionally disabled
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		c.logger.Error("egress mqtt: connect failed", "error", err)
		c.setStatus(subsystem.StatusFailure)
		return
	}

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := cm.AwaitConnection(connCtx); err != nil {
		c.logger.Warn("egress mqtt: initial connection timed out, retrying in background", "error", err)
	}
	cancel()

	c.setStatus(subsystem.StatusOperational)

	sem := semaphore.NewWeighted(maxEncodeWorkers)
	ticker := time.NewTicker(mqttSendInterval)
	defer ticker.Stop()

	for c.token.Valid(snap) {
		select {
		case <-ctx.Done():
			_ = cm.Disconnect(context.Background())
			return
		case <-ticker.C:
		}

		c.tick(ctx, snap, cm, sem)
	}

	disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), workerJoinTimeout)
	defer disconnectCancel()
	_ = cm.Disconnect(disconnectCtx)
}

// tick runs one write phase (bounded, concurrent per key) followed by one
// send phase (sequential, this goroutine) across every configured key.
func (c *Channel) tick(ctx context.Context, snap genid.Snapshot, cm *autopaho.ConnectionManager, sem *semaphore.Weighted) {
	c.mu.RLock()
	pipes, topics := c.pipes, c.topics
	c.mu.RUnlock()
	if pipes == nil {
		return
	}

	for _, key := range pipes.Keys() {
		p, ok := pipes.Get(key)
		if !ok {
			continue
		}
		if sem.TryAcquire(1) {
			go func(key string, p *pipe.Pipe) {
				defer sem.Release(1)
				c.writePhase(key, p)
			}(key, p)
		}
	}

	// Give the write phase a brief head start before the send phase reads
	// whatever it has produced so far; any payload not yet pushed simply
	// goes out next tick.
	time.Sleep(5 * time.Millisecond)

	for key, topic := range topics {
		blk := c.blockFor(key)
		if blk == nil {
			continue
		}
		for _, payload := range blk.drainAllButOne() {
			if _, err := cm.Publish(ctx, &paho.Publish{Topic: topic, Payload: payload, QoS: 0}); err != nil {
				c.logger.Warn("egress mqtt: publish failed", "topic", topic, "error", err)
			}
		}
	}
}

func (c *Channel) blockFor(key string) *block {
	c.blocksMu.Lock()
	defer c.blocksMu.Unlock()
	return c.blocks[key]
}

// writePhase drains exactly the records present in p at call time
// (qsize entries, per the spec's resolution of the source's ambiguous
// write-phase ranges: Design Notes §9), chunks them by estimated byte
// size, and pushes one CSV payload per chunk onto key's block.
func (c *Channel) writePhase(key string, p *pipe.Pipe) {
	qsize := p.Len()
	if qsize == 0 {
		return
	}
	records := p.DequeueUpTo(qsize)
	desc := p.Descriptor()

	entrySize := estimateEntrySize(desc, records[0])
	totalSize := qsize * entrySize
	numBlocks := totalSize / maxSendBlockByteSize
	if numBlocks < 1 {
		numBlocks = 1
	}

	chunkSize := int(math.Ceil(float64(len(records)) / float64(numBlocks)))
	if chunkSize < 1 {
		chunkSize = 1
	}

	blk := c.blockFor(key)
	if blk == nil {
		return
	}

	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		payload, err := encodeCSV(desc, records[start:end])
		if err != nil {
			c.logger.Warn("egress mqtt: csv encode failed, dropping chunk", "key", key, "error", err)
			continue
		}
		blk.push(payload)
	}

	c.activity.Sample(qsize)
}

// estimateEntrySize approximates one record's encoded byte length as
// ceil(1.2 * sum(len(str(field)))) (spec §4.5).
func estimateEntrySize(desc schema.Descriptor, record pipe.Record) int {
	total := 0
	for i, f := range desc.Fields {
		if s, err := schema.FormatField(f, record[i]); err == nil {
			total += len(s)
		}
	}
	return int(math.Ceil(1.2 * float64(total)))
}

func encodeCSV(desc schema.Descriptor, records []pipe.Record) ([]byte, error) {
	var sb strings.Builder
	for _, record := range records {
		cells := make([]string, len(desc.Fields))
		for i, f := range desc.Fields {
			s, err := schema.FormatField(f, record[i])
			if err != nil {
				return nil, fmt.Errorf("field %d (%s): %w", i, f.Token, err)
			}
			if f.IsNumeric() {
				cells[i] = s
			} else {
				cells[i] = `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
			}
		}
		sb.WriteString(strings.Join(cells, ","))
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}
