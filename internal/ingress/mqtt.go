package ingress

import (
	"context"
	"crypto/tls"
	"encoding/csv"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/RaedanWulfe/oddimorf/internal/genid"
	"github.com/RaedanWulfe/oddimorf/internal/pipe"
	"github.com/RaedanWulfe/oddimorf/internal/schema"
	"github.com/RaedanWulfe/oddimorf/internal/subsystem"
)

// runMQTT subscribes to every topic in ep.Topics and parses each inbound
// message as newline-separated CSV rows (spec §4.4 "MQTT/MQTTS
// subscriber").
func (c *Channel) runMQTT(ctx context.Context, snap genid.Snapshot, ep subsystem.Endpoint) {
	scheme := "mqtt"
	if ep.Protocol == subsystem.ProtocolMQTTS {
		scheme = "mqtts"
	}
	brokerURL, err := url.Parse(fmt.Sprintf("%s://%s:%d", scheme, ep.Address, ep.Port))
	if err != nil {
		c.logger.Error("ingress mqtt: invalid broker address", "error", err)
		c.setStatus(subsystem.StatusFailure)
		return
	}

	desc := c.currentDescriptor()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("ingress mqtt: connected, subscribing", "broker", brokerURL.String(), "topics", ep.Topics)
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, topic := range ep.Topics {
				if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
					Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
				}); err != nil {
					c.logger.Warn("ingress mqtt: subscribe failed", "topic", topic, "error", err)
				}
			}
		},
		OnConnectError: func(err error) {
			c.logger.Warn("ingress mqtt: connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "ingress-" + randomishID(),
		},
	}

	if ep.Protocol == subsystem.ProtocolMQTTS {
		pahoCfg.TlsCfg = &tls.Config{InsecureSkipVerify: true} // spec Non-goals: no authenticated TLS, peer verification intentionally disabled
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		c.logger.Error("ingress mqtt: connect failed", "error", err)
		c.setStatus(subsystem.StatusFailure)
		return
	}

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		if !c.token.Valid(snap) {
			return true, nil
		}
		c.handleMessage(desc, pr.Packet.Payload)
		return true, nil
	})

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := cm.AwaitConnection(connCtx); err != nil {
		c.logger.Warn("ingress mqtt: initial connection timed out, retrying in background", "error", err)
	}
	cancel()

	c.setStatus(subsystem.StatusOperational)

	ticker := time.NewTicker(cancellationCheckInterval)
	defer ticker.Stop()
	for c.token.Valid(snap) {
		select {
		case <-ctx.Done():
			_ = cm.Disconnect(context.Background())
			return
		case <-ticker.C:
		}
	}

	disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), workerJoinTimeout)
	defer disconnectCancel()
	_ = cm.Disconnect(disconnectCtx)
}

// handleMessage splits one inbound payload into CSV lines, records one
// activity sample per batch, and enqueues each parsed row.
func (c *Channel) handleMessage(desc schema.Descriptor, payload []byte) {
	lines := strings.Split(strings.TrimRight(string(payload), "\n"), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return
	}

	c.activity.Sample(len(lines))

	q := c.Queue()
	if q == nil {
		return
	}

	for _, line := range lines {
		reader := csv.NewReader(strings.NewReader(line))
		fields, err := reader.Read()
		if err != nil {
			c.logger.Warn("ingress mqtt: malformed CSV row, dropping", "error", err)
			continue
		}
		record, err := parseRow(desc, fields)
		if err != nil {
			c.logger.Warn("ingress mqtt: row does not match schema, dropping", "error", err)
			continue
		}
		q.Enqueue(record)
	}
}

func parseRow(desc schema.Descriptor, fields []string) (pipe.Record, error) {
	if len(fields) != len(desc.Fields) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(desc.Fields), len(fields))
	}
	record := make(pipe.Record, len(fields))
	for i, f := range desc.Fields {
		v, err := schema.ParseField(f, fields[i])
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, f.Token, err)
		}
		record[i] = v
	}
	return record, nil
}

func (c *Channel) currentDescriptor() schema.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.descriptor
}

// randomishID derives a short, non-cryptographic client-id suffix from
// the current time, avoiding client-id collisions across restarts
// without pulling in a dedicated ID generator for this one call site.
func randomishID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}
