// Package subsystem implements the Context aggregate: the shared runtime
// state a controller, its ingress/egress channels, and user code all read
// or mutate (spec §3 "Context").
//
// Grounded on radar_subsystem/core.py's Context class. Per the spec's
// Design Notes §9 ("Controller → Context → Channels → back to
// Controller-owned state" is a cyclic reference that should be broken by
// a narrow handle), Context does not import the ingress/egress packages:
// it holds each channel behind the minimal Channel interface declared
// below, and the controller — which does import both concrete channel
// types — wires them in after construction.
package subsystem

import (
	"sync"

	"github.com/RaedanWulfe/oddimorf/internal/control"
)

// Channel is the narrow view of an ingress or egress channel that
// Context needs: its aggregate status for Status-topic reporting, and a
// halt hook used when the controller reconfigures its endpoint.
type Channel interface {
	Status() Status
	Halt()
}

// Context aggregates a subsystem's identity, chain membership, broker
// endpoint, controls, data items, and channel references for the
// lifetime of the process.
type Context struct {
	ModuleUID  string
	ModuleName string
	Broker     Endpoint

	mu                 sync.RWMutex
	chainUID           string
	isChainRunning     bool
	isSubsystemChained bool
	origin             Origin
	isTerminated       bool
	status             Status

	controls  []control.Control
	dataItems []*DataItem

	ingress Channel
	egress  Channel

	TotalRate  RateWindow
	ErrorsRate RateWindow
}

// New constructs a Context for the given identity and broker endpoint,
// with controls and data items already built from local configuration
// (spec §3 lifecycle: "Controls and data items are created at startup
// ... and never destroyed").
func New(moduleUID, moduleName string, broker Endpoint, controls []control.Control, dataItems []*DataItem) *Context {
	return &Context{
		ModuleUID:  moduleUID,
		ModuleName: moduleName,
		Broker:     broker,
		controls:   controls,
		dataItems:  dataItems,
	}
}

// SetChannels wires the concrete ingress/egress channels in after
// construction, breaking the Controller/Context/Channel reference cycle
// (spec Design Notes §9).
func (c *Context) SetChannels(ingress, egress Channel) {
	c.mu.Lock()
	c.ingress, c.egress = ingress, egress
	c.mu.Unlock()
}

// Controls returns the subsystem's configured controls.
func (c *Context) Controls() []control.Control { return c.controls }

// DataItems returns the subsystem's configured data items.
func (c *Context) DataItems() []*DataItem { return c.dataItems }

// FindControl looks up a control by its hyphenless uid.
func (c *Context) FindControl(uid string) (control.Control, bool) {
	for _, ctl := range c.controls {
		if ctl.UID() == uid {
			return ctl, true
		}
	}
	return nil, false
}

// FindDataItem looks up a data item by its stream key.
func (c *Context) FindDataItem(key string) (*DataItem, bool) {
	for _, d := range c.dataItems {
		if d.Key() == key {
			return d, true
		}
	}
	return nil, false
}

// ChainUID returns the current chain this subsystem has joined, or "" if
// none (spec §3: "current chain_uid (empty when none)").
func (c *Context) ChainUID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainUID
}

// SetChain records a SelectedChain update: the chain uid and whether that
// chain is currently running (spec §4.6 "CHAIN_UNKNOWN" transition).
func (c *Context) SetChain(uid string, running bool) {
	c.mu.Lock()
	c.chainUID = uid
	c.isChainRunning = running
	c.mu.Unlock()
}

// IsChainRunning reports the chain's own running flag, independent of
// whether this subsystem is a member of it.
func (c *Context) IsChainRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isChainRunning
}

// SetSubsystemChained records whether this module_uid appears in the
// chain's Setup/SubSystems membership list (spec §4.6 "CHAIN_KNOWN").
func (c *Context) SetSubsystemChained(chained bool) {
	c.mu.Lock()
	c.isSubsystemChained = chained
	c.mu.Unlock()
}

// IsSubsystemChained reports whether this module is currently a member
// of the joined chain's subsystem list.
func (c *Context) IsSubsystemChained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isSubsystemChained
}

// IsRunning is the conjunction that gates channel start/stop and record
// publication (spec §3: "is_running (= is_chain_running ∧
// is_subsystem_chained)").
func (c *Context) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isChainRunning && c.isSubsystemChained
}

// SetOrigin records the subsystem's sensor location from a Chains/<c>/Setup
// update.
func (c *Context) SetOrigin(o Origin) {
	c.mu.Lock()
	c.origin = o
	c.mu.Unlock()
}

// Origin returns the subsystem's current sensor location.
func (c *Context) Origin() Origin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.origin
}

// Status reports the aggregated severity across the context itself and
// both channels (spec §9 supplemented feature: "Context.determine_status
// takes the max of Status across context/ingress/egress").
func (c *Context) Status() Status {
	c.mu.RLock()
	s, ingress, egress := c.status, c.ingress, c.egress
	c.mu.RUnlock()

	if ingress != nil {
		s = Max(s, ingress.Status())
	}
	if egress != nil {
		s = Max(s, egress.Status())
	}
	return s
}

// SetStatus updates the Context's own status contribution (independent
// of its channels' statuses).
func (c *Context) SetStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// ErrorDigits renders the error-rate indicator published alongside
// throughput on the Rates topic. The Python original's
// determine_error_count never computes anything beyond a constant
// all-zero stub, a gap this rendition preserves rather than inventing an
// error-counting scheme the spec never describes (spec §9 supplemented
// features).
func (c *Context) ErrorDigits() string {
	return "000000"
}

// Terminate marks the context as shut down. Set once, at process
// shutdown; never cleared.
func (c *Context) Terminate() {
	c.mu.Lock()
	c.isTerminated = true
	c.mu.Unlock()
}

// IsTerminated reports whether Terminate has been called.
func (c *Context) IsTerminated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isTerminated
}
