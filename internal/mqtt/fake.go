package mqtt

import (
	"errors"
	"sync"
)

// Publication records one call to Publish.
type Publication struct {
	Topic    string
	Payload  string
	Retained bool
}

// FakeClient is an in-memory broker session for tests. Like a real broker it
// delivers publications back to subscribers and replays the retained
// message on Subscribe.
type FakeClient struct {
	mu sync.Mutex

	// Published contains every successful publication.
	Published []Publication

	// ConnectAttempts counts calls to Connect.
	ConnectAttempts int

	// ConnectError, if set, completes Connect with that error.
	ConnectError error

	// PublishError, if set, completes Publish with that error.
	PublishError error

	// SubscribeError, if set, completes Subscribe with that error.
	SubscribeError error

	// HoldConnect leaves connection attempts pending until FinishConnect,
	// like a broker that accepts TCP but has not sent CONNACK.
	HoldConnect bool

	pendingConnect *FakeToken

	connected  bool
	subscribed map[string]bool
	retained   map[string][]byte
	inbound    []Message
	closed     bool
}

// FakeToken is a Token completed by the test (or immediately by FakeClient).
type FakeToken struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewFakeToken returns a pending token.
func NewFakeToken() *FakeToken {
	return &FakeToken{done: make(chan struct{})}
}

func completedToken(err error) *FakeToken {
	t := NewFakeToken()
	t.Complete(err)
	return t
}

// Complete finishes the token. Later calls are ignored.
func (t *FakeToken) Complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *FakeToken) Done() <-chan struct{} { return t.done }

// Error is only meaningful once Done is closed.
func (t *FakeToken) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// NewFakeClient creates a disconnected FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		subscribed: make(map[string]bool),
		retained:   make(map[string][]byte),
	}
}

// Connect succeeds unless ConnectError is set. With HoldConnect the attempt
// stays pending until FinishConnect.
func (f *FakeClient) Connect() Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectAttempts++
	if f.HoldConnect {
		f.pendingConnect = NewFakeToken()
		return f.pendingConnect
	}
	if f.ConnectError != nil {
		return completedToken(f.ConnectError)
	}
	f.connected = true
	return completedToken(nil)
}

// FinishConnect completes a held connection attempt with err.
func (f *FakeClient) FinishConnect(err error) {
	f.mu.Lock()
	tok := f.pendingConnect
	f.pendingConnect = nil
	if tok != nil && err == nil {
		f.connected = true
	}
	f.mu.Unlock()
	if tok != nil {
		tok.Complete(err)
	}
}

// IsConnected reports the simulated session state.
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Subscribe records the subscription and queues the retained message.
func (f *FakeClient) Subscribe(topic string) Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return completedToken(f.SubscribeError)
	}
	if !f.connected {
		return completedToken(errors.New("not connected"))
	}
	f.subscribed[topic] = true
	if payload, ok := f.retained[topic]; ok {
		f.inbound = append(f.inbound, Message{Topic: topic, Payload: payload, Retained: true})
	}
	return completedToken(nil)
}

// Publish records the publication and loops it back to subscribers.
func (f *FakeClient) Publish(topic string, payload []byte, retained bool) Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return completedToken(f.PublishError)
	}
	if !f.connected {
		return completedToken(errors.New("not connected"))
	}
	f.Published = append(f.Published, Publication{Topic: topic, Payload: string(payload), Retained: retained})
	if retained {
		f.retained[topic] = payload
	}
	if f.subscribed[topic] {
		f.inbound = append(f.inbound, Message{Topic: topic, Payload: payload})
	}
	return completedToken(nil)
}

// Drain returns and clears the queued inbound messages.
func (f *FakeClient) Drain() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.inbound
	f.inbound = nil
	return msgs
}

// Disconnect marks the session closed.
func (f *FakeClient) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.closed = true
	f.subscribed = make(map[string]bool)
	f.mu.Unlock()
}

// Inject queues a message as if another client had published it.
func (f *FakeClient) Inject(topic, payload string) {
	f.mu.Lock()
	f.inbound = append(f.inbound, Message{Topic: topic, Payload: []byte(payload)})
	f.mu.Unlock()
}

// Drop simulates a broker-side connection loss.
func (f *FakeClient) Drop() {
	f.mu.Lock()
	f.connected = false
	f.subscribed = make(map[string]bool)
	f.mu.Unlock()
}

// Retained returns the broker's retained payload for topic.
func (f *FakeClient) Retained(topic string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.retained[topic]
	return string(p), ok
}

// LastPublished returns the most recent publication.
func (f *FakeClient) LastPublished() (Publication, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Published) == 0 {
		return Publication{}, false
	}
	return f.Published[len(f.Published)-1], true
}

// Closed reports whether Disconnect was called.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
