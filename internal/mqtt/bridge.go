package mqtt

import (
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/lamp-relay/internal/clock"
	"github.com/sweeney/lamp-relay/internal/logic"
)

const (
	// DefaultReconnectInterval is the minimum spacing between connection attempts.
	DefaultReconnectInterval = 5 * time.Second

	// handshakeTimeout bounds how long a connect or subscribe may stay pending.
	handshakeTimeout = 10 * time.Second

	// echoWindow is how long an own publication may take to come back.
	echoWindow = 2 * time.Second

	// maxPending bounds the echo suppression list.
	maxPending = 8

	// maxInflight bounds the publications awaiting their token.
	maxInflight = 16
)

// Link reports whether the station network is up. The bridge does nothing
// while it is down (AP fallback or still connecting).
type Link interface {
	StationConnected() bool
}

type pendingPub struct {
	payload string
	at      time.Time
}

type inflightPub struct {
	state logic.State
	tok   Token
}

type phase int

const (
	phaseIdle phase = iota
	phaseConnecting
	phaseSubscribing
	phaseUp
)

// Bridge keeps one broker session alive and translates between the lamp
// state and the command topic. It is driven from the control loop by
// Service, never waits on the broker, and is not safe for concurrent use.
type Bridge struct {
	client   Client
	topic    string
	link     Link
	clk      clock.Clock
	throttle *clock.Throttle
	log      *zap.Logger

	phase    phase
	op       Token // pending connect or subscribe
	opStart  time.Time
	pending  []pendingPub
	inflight []inflightPub
}

// NewBridge creates a bridge. An interval of zero means DefaultReconnectInterval.
func NewBridge(client Client, topic string, link Link, clk clock.Clock, interval time.Duration, log *zap.Logger) *Bridge {
	if topic == "" {
		topic = DefaultTopic
	}
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		client:   client,
		topic:    topic,
		link:     link,
		clk:      clk,
		throttle: clock.NewThrottle(interval),
		log:      log.Named("mqtt"),
	}
}

// Topic returns the command/state topic.
func (b *Bridge) Topic() string {
	return b.topic
}

// Connected reports whether a subscribed session is up.
func (b *Bridge) Connected() bool {
	return b.phase == phaseUp && b.client.IsConnected()
}

// PublishState publishes s as a retained message. Without a session the
// update is skipped; the current state is published again on reconnect.
func (b *Bridge) PublishState(s logic.State) {
	if !b.Connected() {
		b.log.Debug("publish skipped, no session", zap.Stringer("state", s))
		return
	}
	b.publish(s)
}

// Service advances the session one step and returns the commands received
// since the last call, in arrival order. current is published on every new
// session. It never blocks: pending broker operations are polled on later
// calls.
func (b *Bridge) Service(current logic.State) []logic.State {
	if !b.link.StationConnected() {
		if b.phase != phaseIdle {
			b.log.Info("station link down, closing session")
			b.dropSession()
		}
		return nil
	}

	if b.phase == phaseUp && !b.client.IsConnected() {
		b.log.Warn("session lost")
		b.dropSession()
	}

	b.checkInflight()

	if b.phase == phaseIdle {
		if !b.throttle.Allow(b.clk.Now()) {
			return nil
		}
		b.startOp(phaseConnecting, b.client.Connect())
	}

	if b.phase == phaseConnecting {
		ok, done := b.pollOp("connect")
		if !done || !ok {
			return nil
		}
		b.publish(current)
		b.startOp(phaseSubscribing, b.client.Subscribe(b.topic))
	}

	if b.phase == phaseSubscribing {
		ok, done := b.pollOp("subscribe")
		if !done || !ok {
			return nil
		}
		b.phase = phaseUp
		b.log.Info("connected", zap.String("topic", b.topic), zap.Stringer("state", current))
	}

	return b.receive()
}

// Close ends the session, if any.
func (b *Bridge) Close() {
	if b.phase != phaseIdle {
		b.dropSession()
	}
}

func (b *Bridge) startOp(p phase, tok Token) {
	b.phase = p
	b.op = tok
	b.opStart = b.clk.Now()
}

// pollOp checks the pending operation. done is false while it is still in
// flight; ok is false if it failed, in which case the session is dropped.
func (b *Bridge) pollOp(what string) (ok, done bool) {
	if !finished(b.op) {
		if b.clk.Now().Sub(b.opStart) < handshakeTimeout {
			return false, false
		}
		b.log.Warn(what+" timed out", zap.Duration("after", handshakeTimeout),
			zap.Duration("retry_in", b.throttle.Interval()))
		b.dropSession()
		return false, true
	}
	if err := b.op.Error(); err != nil {
		b.log.Warn(what+" failed", zap.String("topic", b.topic), zap.Error(err),
			zap.Duration("retry_in", b.throttle.Interval()))
		b.dropSession()
		return false, true
	}
	b.op = nil
	return true, true
}

func (b *Bridge) publish(s logic.State) {
	payload := s.Payload()
	tok := b.client.Publish(b.topic, []byte(payload), true)
	b.remember(payload)
	if len(b.inflight) == maxInflight {
		b.inflight = b.inflight[1:]
	}
	b.inflight = append(b.inflight, inflightPub{state: s, tok: tok})
}

// checkInflight reports publications that have completed with an error.
func (b *Bridge) checkInflight() {
	keep := b.inflight[:0]
	for _, p := range b.inflight {
		if !finished(p.tok) {
			keep = append(keep, p)
			continue
		}
		if err := p.tok.Error(); err != nil {
			b.log.Warn("publish failed", zap.Stringer("state", p.state), zap.Error(err))
		}
	}
	b.inflight = keep
}

func (b *Bridge) receive() []logic.State {
	msgs := b.client.Drain()
	if len(msgs) == 0 {
		return nil
	}

	var cmds []logic.State
	for _, msg := range msgs {
		if msg.Topic != b.topic {
			continue
		}
		s, ok := DecodeCommand(msg.Payload)
		if !ok {
			b.log.Warn("ignoring invalid command", zap.ByteString("payload", msg.Payload))
			continue
		}
		if b.isEcho(s.Payload()) {
			continue
		}
		b.log.Info("command received", zap.Stringer("state", s), zap.Bool("retained", msg.Retained))
		cmds = append(cmds, s)
	}
	return cmds
}

// remember records an own publication so its echo from the broker is not
// taken for a new command.
func (b *Bridge) remember(payload string) {
	b.prune()
	if len(b.pending) == maxPending {
		b.pending = b.pending[1:]
	}
	b.pending = append(b.pending, pendingPub{payload: payload, at: b.clk.Now()})
}

func (b *Bridge) isEcho(payload string) bool {
	b.prune()
	for i, p := range b.pending {
		if p.payload == payload {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bridge) prune() {
	now := b.clk.Now()
	keep := b.pending[:0]
	for _, p := range b.pending {
		if now.Sub(p.at) <= echoWindow {
			keep = append(keep, p)
		}
	}
	b.pending = keep
}

func (b *Bridge) dropSession() {
	b.client.Disconnect()
	b.phase = phaseIdle
	b.op = nil
	b.pending = nil
	b.inflight = nil
}
