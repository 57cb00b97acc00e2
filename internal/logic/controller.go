package logic

import "go.uber.org/zap"

// Relay drives the physical output. gpio.Output satisfies it.
type Relay interface {
	Set(high bool) error
}

// Publisher mirrors state changes to the message bus. Implementations decide
// whether a session is available and must not block.
type Publisher interface {
	PublishState(s State)
}

// StatusSink is notified after every state change (web status, history).
type StatusSink interface {
	OnStateChanged(s State)
}

// Controller owns the lamp state. Every trigger source (switch, web, bus)
// goes through SetState or Toggle so the relay, the bus and the status sink
// are always updated together.
//
// Controller is not safe for concurrent use; it belongs to the control loop.
type Controller struct {
	state State
	relay Relay
	pub   Publisher
	sink  StatusSink
	log   *zap.Logger
}

// NewController creates a controller in the Off state. pub and sink may be nil.
func NewController(relay Relay, pub Publisher, sink StatusSink, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		state: StateOff,
		relay: relay,
		pub:   pub,
		sink:  sink,
		log:   log.Named("lamp"),
	}
}

// State returns the current value.
func (c *Controller) State() State {
	return c.state
}

// Sync drives the relay to the current state without publishing or
// notifying. Used once at boot.
func (c *Controller) Sync() {
	c.drive()
}

// SetState sets the lamp unconditionally. Publication is not suppressed when
// the value does not change.
func (c *Controller) SetState(s State) {
	c.state = s
	c.drive()
	if c.pub != nil {
		c.pub.PublishState(s)
	}
	if c.sink != nil {
		c.sink.OnStateChanged(s)
	}
	c.log.Info("state set", zap.Stringer("state", s))
}

// Toggle flips the lamp.
func (c *Controller) Toggle() {
	c.SetState(c.state.Toggled())
}

func (c *Controller) drive() {
	if err := c.relay.Set(c.state == StateOn); err != nil {
		c.log.Error("relay write failed", zap.Stringer("state", c.state), zap.Error(err))
	}
}
