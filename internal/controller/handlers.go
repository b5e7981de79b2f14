package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/RaedanWulfe/oddimorf/internal/pipe"
	"github.com/RaedanWulfe/oddimorf/internal/schema"
	"github.com/RaedanWulfe/oddimorf/internal/subsystem"
)

const subscribeTimeout = 10 * time.Second

func timeNow() time.Time { return time.Now() }

// dispatch routes one inbound publish to the matching handler, following
// the control-plane state machine in spec §4.6.
func (c *Controller) dispatch(ctx context.Context, topic string, payload []byte) {
	switch {
	case topic == topicSelectedChain:
		c.handleSelectedChain(ctx, payload)
	case c.chainUID != "" && topic == topicSetup(c.chainUID):
		c.handleSetup(payload)
	case c.chainUID != "" && topic == topicSetupSubSystems(c.chainUID):
		c.handleSetupSubSystems(ctx, payload)
	case c.stage == stageChainKnown && matchesControlsTopic(topic, c.chainUID, c.ctx.ModuleUID):
		c.handleControl(ctx, topic, payload)
	case c.stage == stageChainKnown && matchesInterpretationTopic(topic, c.chainUID, c.ctx.ModuleUID):
		c.handleDataItem(ctx, topic, payload)
	case c.chainUID != "" && topic == topicIncoming(c.chainUID, c.ctx.ModuleUID):
		c.handleIncoming(payload)
	case c.chainUID != "" && topic == topicOutgoing(c.chainUID, c.ctx.ModuleUID):
		c.handleOutgoing(payload)
	}
}

func matchesControlsTopic(topic, chainUID, moduleUID string) bool {
	prefix := fmt.Sprintf("Chains/%s/SubSystems/%s/Controls/", chainUID, moduleUID)
	return len(topic) > len(prefix) && topic[:len(prefix)] == prefix
}

func matchesInterpretationTopic(topic, chainUID, moduleUID string) bool {
	prefix := fmt.Sprintf("Chains/%s/SubSystems/%s/Data/", chainUID, moduleUID)
	const suffix = "/Interpretation"
	if len(topic) <= len(prefix)+len(suffix) || topic[:len(prefix)] != prefix {
		return false
	}
	return topic[len(topic)-len(suffix):] == suffix
}

type selectedChainPayload struct {
	ID        string `json:"id"`
	IsRunning bool   `json:"isRunning"`
}

// handleSelectedChain implements the CHAIN_UNKNOWN -> CHAIN_KNOWN
// transition (spec §4.6): record the chain and subscribe to its Setup topics.
func (c *Controller) handleSelectedChain(ctx context.Context, payload []byte) {
	var p selectedChainPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("controller: malformed SelectedChain payload", "error", err)
		return
	}

	c.chainUID = p.ID
	c.ctx.SetChain(p.ID, p.IsRunning)

	c.subscribe(ctx, topicSetup(p.ID))
	c.subscribe(ctx, topicSetupSubSystems(p.ID))
	c.stage = stageChainKnown
}

type setupPayload struct {
	Origin struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"origin"`
}

func (c *Controller) handleSetup(payload []byte) {
	var p setupPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("controller: malformed Setup payload", "error", err)
		return
	}
	c.ctx.SetOrigin(subsystem.Origin{Latitude: p.Origin.Latitude, Longitude: p.Origin.Longitude})
}

// handleSetupSubSystems implements the membership check and, on joining,
// subscribes to every per-subsystem topic (spec §4.6).
func (c *Controller) handleSetupSubSystems(ctx context.Context, payload []byte) {
	var members []string
	if err := json.Unmarshal(payload, &members); err != nil {
		c.logger.Warn("controller: malformed Setup/SubSystems payload", "error", err)
		return
	}

	chained := false
	for _, m := range members {
		if m == c.ctx.ModuleUID {
			chained = true
			break
		}
	}

	wasChained := c.ctx.IsSubsystemChained()
	c.ctx.SetSubsystemChained(chained)

	if chained && !wasChained {
		c.subscribe(ctx, topicControlsWildcard(c.chainUID, c.ctx.ModuleUID))
		c.subscribe(ctx, topicDataInterpretationWildcard(c.chainUID, c.ctx.ModuleUID))
		c.subscribe(ctx, topicIncoming(c.chainUID, c.ctx.ModuleUID))
		c.subscribe(ctx, topicOutgoing(c.chainUID, c.ctx.ModuleUID))

		now := timeNow()
		for _, ctl := range c.ctx.Controls() {
			ctl.ResetDeadline(now)
		}
		for _, item := range c.ctx.DataItems() {
			item.ResetDeadline(now)
		}
	}
}

// handleControl decodes an inbound control update, or clears a stale
// retained topic when no matching control is configured (spec §4.6:
// "Controls/<uid>").
func (c *Controller) handleControl(ctx context.Context, topic string, payload []byte) {
	uid := trailingUID(topic)
	ctl, ok := c.ctx.FindControl(uid)
	if !ok {
		if len(payload) > 0 {
			c.publish(ctx, topic, nil, true)
		}
		return
	}
	if !ctl.Decode(payload) {
		c.logger.Warn("controller: control decode rejected", "uid", uid)
	}
}

func (c *Controller) handleDataItem(ctx context.Context, topic string, payload []byte) {
	key := interpretationKey(topic)
	item, ok := c.ctx.FindDataItem(key)
	if !ok {
		c.publish(ctx, topic, nil, true)
		return
	}
	if !item.Decode(payload) {
		c.logger.Warn("controller: data item decode rejected", "key", key)
	}
}

type incomingPayload struct {
	Protocol string   `json:"protocol"`
	IP       string   `json:"ip"`
	Port     int      `json:"port"`
	Topics   []string `json:"topics"`
	Layout   string   `json:"layout"`
	Source   string   `json:"source"`
}

// handleIncoming reconfigures the ingress channel from an Incoming
// update, or clears it when payload is empty (spec §4.6).
func (c *Controller) handleIncoming(payload []byte) {
	c.ingress.Halt()

	if len(payload) == 0 {
		c.ingress.Configure(subsystem.Endpoint{}, "", schema.Descriptor{})
		return
	}

	var p incomingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("controller: malformed Incoming payload", "error", err)
		return
	}

	var desc schema.Descriptor
	if p.Layout != "" {
		d, err := schema.Parse(p.Layout)
		if err != nil {
			c.logger.Warn("controller: invalid Incoming layout, refusing to configure", "layout", p.Layout, "error", err)
			return
		}
		desc = d
	}

	source := p.Source
	if source == "" && len(p.Topics) > 0 {
		source = p.Topics[0]
	}

	var streamKey string
	var topics []string
	for _, key := range p.Topics {
		streamKey = key
		topics = append(topics, dataStreamTopic(c.chainUID, source, key))
	}

	ep := subsystem.Endpoint{
		Protocol: subsystem.ParseProtocol(p.Protocol),
		Address:  p.IP,
		Port:     p.Port,
		Topics:   topics,
		IsActive: true,
	}
	c.ingress.Configure(ep, streamKey, desc)
}

type outgoingPayload struct {
	Protocol string `json:"protocol"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
}

// handleOutgoing reconfigures the egress channel, building one topic per
// own output key (spec §4.6: "topics are .../Data/<key>/Records for
// every own output key").
func (c *Controller) handleOutgoing(payload []byte) {
	c.egress.Halt()

	if len(payload) == 0 {
		c.egress.Configure(subsystem.Endpoint{}, pipe.NewSet(), nil)
		return
	}

	var p outgoingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("controller: malformed Outgoing payload", "error", err)
		return
	}

	topics := make(map[string]string)
	for _, key := range c.outputPipes.Keys() {
		topics[key] = dataStreamTopic(c.chainUID, c.ctx.ModuleUID, key)
	}

	ep := subsystem.Endpoint{
		Protocol: subsystem.ParseProtocol(p.Protocol),
		Address:  p.IP,
		Port:     p.Port,
		Topics:   topicValues(topics),
		IsActive: true,
	}
	c.egress.Configure(ep, c.outputPipes, topics)
}

func topicValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

type definitionPayloadBody struct {
	Label   string   `json:"label"`
	Streams []string `json:"streams"`
}

func definitionPayload(label string, pipes *pipe.Set) ([]byte, error) {
	return json.Marshal(definitionPayloadBody{Label: label, Streams: pipes.Keys()})
}

// subscribe issues a broker subscription for topic at QoS 1.
func (c *Controller) subscribe(ctx context.Context, topic string) {
	if c.cm == nil {
		return
	}
	subCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	if _, err := c.cm.Subscribe(subCtx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
	}); err != nil {
		c.logger.Warn("controller: subscribe failed", "topic", topic, "error", err)
	}
}
