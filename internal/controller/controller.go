// Package controller implements the subsystem's broker client and
// control-plane state machine: it tracks chain membership, configures
// the ingress/egress channels from broker messages, starts and stops
// them as is_running changes, and publishes the subsystem's periodic
// definition/status/rate reports.
//
// Grounded on radar_subsystem/core.py's on_connect/on_message/
// on_disconnect callbacks and Controller.loop_async. The autopaho
// connection lifecycle follows the teacher's internal/mqtt/publisher.go;
// goroutine supervision during Run uses golang.org/x/sync/errgroup,
// grounded on the same dependency in the example pack's ticdc and
// redb-open repos.
package controller

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"golang.org/x/sync/errgroup"

	"github.com/RaedanWulfe/oddimorf/internal/egress"
	"github.com/RaedanWulfe/oddimorf/internal/ingress"
	"github.com/RaedanWulfe/oddimorf/internal/pipe"
	"github.com/RaedanWulfe/oddimorf/internal/subsystem"
)

// tickInterval is CANCELLATION_CHECK_INTERVAL, reused here as the
// controller's own periodic tick (spec §5).
const tickInterval = 1 * time.Second

// definitionRepublishEveryNTicks is "every 4th tick" (spec §4.6).
const definitionRepublishEveryNTicks = 4

// stage tracks how far the control-plane state machine has progressed,
// gating which topics are currently subscribed (spec §4.6's BOOT /
// CHAIN_UNKNOWN / CHAIN_KNOWN diagram).
type stage int

const (
	stageBoot stage = iota
	stageChainUnknown
	stageChainKnown
)

// Controller owns the broker connection and drives the ingress/egress
// channels' lifecycle from it.
type Controller struct {
	logger *slog.Logger

	ctx     *subsystem.Context
	ingress *ingress.Channel
	egress  *egress.Channel

	outputPipes *pipe.Set // this subsystem's own data items, by key

	cm *autopaho.ConnectionManager

	stage    stage
	chainUID string

	tickCount int
}

// New constructs a Controller for the given context and channels. ctx's
// channels must already be wired via ctx.SetChannels with the same
// ingress/egress instances passed here.
func New(logger *slog.Logger, ctx *subsystem.Context, in *ingress.Channel, eg *egress.Channel, outputPipes *pipe.Set) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{logger: logger, ctx: ctx, ingress: in, egress: eg, outputPipes: outputPipes}
}

// Run connects to the configured broker, subscribes to SelectedChain, and
// runs the 1-second controller tick loop until ctx is cancelled. It
// returns once the connection and tick loop have both stopped.
func (c *Controller) Run(ctx context.Context) error {
	scheme := "mqtt"
	if c.ctx.Broker.Protocol == subsystem.ProtocolMQTTS {
		scheme = "mqtts"
	}
	brokerURL, err := url.Parse(fmt.Sprintf("%s://%s:%d", scheme, c.ctx.Broker.Address, c.ctx.Broker.Port))
	if err != nil {
		return fmt.Errorf("controller: invalid broker address: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("controller: connected to broker", "broker", brokerURL.String())
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: topicSelectedChain, QoS: 1}},
			}); err != nil {
				c.logger.Warn("controller: subscribe to SelectedChain failed", "error", err)
			}
			c.stage = stageChainUnknown
		},
		OnConnectError: func(err error) {
			c.logger.Warn("controller: connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "controller-" + c.ctx.ModuleUID,
		},
	}
	if c.ctx.Broker.Protocol == subsystem.ProtocolMQTTS {
		pahoCfg.TlsCfg = &tls.Config{InsecureSkipVerify: true} // spec Non-goals: peer verification intentionally disabled
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("controller: connect failed: %w", err)
	}
	c.cm = cm

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		c.dispatch(ctx, pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := cm.AwaitConnection(connCtx); err != nil {
		c.logger.Warn("controller: initial connection timed out, retrying in background", "error", err)
	}
	cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.tickLoop(groupCtx)
	})

	err = group.Wait()
	c.shutdown()
	return err
}

// tickLoop runs the 1-second controller tick described in spec §4.6
// until ctx is cancelled.
func (c *Controller) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	c.tickCount++

	c.applyRunningGate(ctx)

	if c.tickCount%definitionRepublishEveryNTicks == 0 {
		c.publishDefinition(ctx)
		c.republishOverdueControls(ctx)
	}

	c.publishStatus(ctx)

	if c.stage == stageChainKnown {
		c.publishRates(ctx)
	}
}

// applyRunningGate starts or stops each channel as ctx.IsRunning()
// transitions, when the channel has a configured endpoint (spec §4.6).
func (c *Controller) applyRunningGate(ctx context.Context) {
	running := c.ctx.IsRunning()

	if running {
		if c.ingress.Endpoint().Address != "" && !c.ingress.IsStarted() {
			c.ingress.Start(ctx)
		}
		if c.egress.Endpoint().Address != "" && !c.egress.IsStarted() {
			c.egress.Start(ctx)
		}
		return
	}

	if c.ingress.IsStarted() {
		c.ingress.Stop()
	}
	if c.egress.IsStarted() {
		c.egress.Stop()
	}
}

func (c *Controller) publishDefinition(ctx context.Context) {
	payload, err := definitionPayload(c.ctx.ModuleName, c.outputPipes)
	if err != nil {
		c.logger.Warn("controller: encode definition failed", "error", err)
		return
	}
	c.publish(ctx, topicDefinition(c.ctx.ModuleUID), payload, true)
}

func (c *Controller) republishOverdueControls(ctx context.Context) {
	now := time.Now()
	for _, ctl := range c.ctx.Controls() {
		if !ctl.NeedsInitialization(now) {
			continue
		}
		payload, err := ctl.Encode()
		if err != nil {
			c.logger.Warn("controller: encode control failed", "uid", ctl.UID(), "error", err)
			continue
		}
		c.publish(ctx, topicControl(c.chainUID, c.ctx.ModuleUID, ctl.UID()), payload, true)
		ctl.ResetDeadline(now)
	}
	for _, item := range c.ctx.DataItems() {
		if !item.NeedsInitialization(now) {
			continue
		}
		payload, err := item.Encode()
		if err != nil {
			c.logger.Warn("controller: encode data item failed", "key", item.Key(), "error", err)
			continue
		}
		c.publish(ctx, topicDataInterpretation(c.chainUID, c.ctx.ModuleUID, item.Key()), payload, true)
		item.ResetDeadline(now)
	}
}

func (c *Controller) publishStatus(ctx context.Context) {
	c.publish(ctx, topicStatus(c.ctx.ModuleUID), []byte(`"`+c.ctx.Status().String()+`"`), false)
}

func (c *Controller) publishRates(ctx context.Context) {
	c.ctx.TotalRate.Push(c.ingress.Activity().DrainSum() + c.egress.Activity().DrainSum())
	payload := fmt.Sprintf(`{"total":"%s","errors":"%s"}`, c.ctx.TotalRate.Digits(), c.ctx.ErrorDigits())
	c.publish(ctx, topicRates(c.chainUID, c.ctx.ModuleUID), []byte(payload), false)
}

func (c *Controller) publish(ctx context.Context, topic string, payload []byte, retain bool) {
	if c.cm == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.cm.Publish(pubCtx, &paho.Publish{Topic: topic, Payload: payload, Retain: retain}); err != nil {
		c.logger.Warn("controller: publish failed", "topic", topic, "error", err)
	}
}

// shutdown clears is_running, stops both channels, and disconnects the
// broker connection (spec §4.6 "Shutdown").
func (c *Controller) shutdown() {
	c.ctx.SetChain(c.ctx.ChainUID(), false)
	c.ingress.Stop()
	c.egress.Stop()
	if c.cm != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.cm.Disconnect(disconnectCtx)
	}
	c.ctx.Terminate()
}
