package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// inboundCapacity bounds messages waiting for the control loop.
const inboundCapacity = 32

// PahoClient is a Client backed by an actual MQTT broker.
// Reconnection is driven by the Bridge, not by paho.
type PahoClient struct {
	client paho.Client
	log    *zap.Logger

	mu          sync.Mutex
	inbound     *ringBuffer
	overflowing bool // set on the first drop, cleared by Drain
}

// NewPahoClient creates a client for broker (e.g. "tcp://192.168.0.127:1883").
// No connection is made until Connect.
func NewPahoClient(broker, clientID string, connectTimeout time.Duration, log *zap.Logger) *PahoClient {
	if log == nil {
		log = zap.NewNop()
	}
	p := &PahoClient{
		log:     log.Named("paho"),
		inbound: newRingBuffer(inboundCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(30 * time.Second).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("connection lost", zap.Error(err))
		})

	p.client = paho.NewClient(opts)
	return p
}

// Connect starts one connection attempt. paho completes the token with an
// error if the broker does not answer within the connect timeout.
func (p *PahoClient) Connect() Token {
	return p.client.Connect()
}

// IsConnected reports the paho connection state.
func (p *PahoClient) IsConnected() bool {
	return p.client.IsConnected()
}

// Subscribe subscribes at QoS 0 and queues received messages.
func (p *PahoClient) Subscribe(topic string) Token {
	return p.client.Subscribe(topic, 0, p.onMessage)
}

// Publish sends payload at QoS 0 (at-most-once).
func (p *PahoClient) Publish(topic string, payload []byte, retained bool) Token {
	return p.client.Publish(topic, 0, retained, payload)
}

// Drain returns the queued inbound messages.
func (p *PahoClient) Drain() []Message {
	p.mu.Lock()
	buffered := p.inbound.drainAll()
	p.overflowing = false
	p.mu.Unlock()

	if len(buffered) == 0 {
		return nil
	}

	msgs := make([]Message, len(buffered))
	for i, b := range buffered {
		msgs[i] = Message{Topic: b.topic, Payload: b.payload, Retained: b.retained}
	}
	return msgs
}

// Disconnect closes the session or abandons a pending attempt. paho does
// the work on its own goroutine; a zero quiesce returns at once.
func (p *PahoClient) Disconnect() {
	p.client.Disconnect(0)
}

// onMessage runs on a paho goroutine.
func (p *PahoClient) onMessage(_ paho.Client, msg paho.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ok := p.inbound.push(bufferedMsg{
		topic:    msg.Topic(),
		payload:  append([]byte(nil), msg.Payload()...),
		retained: msg.Retained(),
	})
	if !ok && !p.overflowing {
		p.overflowing = true
		p.log.Warn("inbound queue full, dropping oldest", zap.Int("capacity", inboundCapacity))
	}
}
