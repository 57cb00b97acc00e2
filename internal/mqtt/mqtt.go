// Package mqtt bridges the lamp state to an MQTT command topic, with the
// broker session abstracted for testing.
package mqtt

import (
	"strings"

	"github.com/sweeney/lamp-relay/internal/logic"
)

// DefaultTopic carries "0"/"1" commands in and retained state out.
const DefaultTopic = "casa/lavanderia/lampada"

// Message is one inbound publication.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Token is the completion of an asynchronous broker operation. paho.Token
// satisfies it.
type Token interface {
	// Done is closed once the operation has finished.
	Done() <-chan struct{}
	// Error is valid after Done is closed.
	Error() error
}

// Client is a broker session. Every call returns without waiting on the
// network; results are read from the returned Token.
type Client interface {
	// Connect starts a single connection attempt.
	Connect() Token

	// IsConnected reports whether the session is still up.
	IsConnected() bool

	// Subscribe registers for topic. Received messages are queued for Drain.
	Subscribe(topic string) Token

	// Publish sends payload at QoS 0.
	Publish(topic string, payload []byte, retained bool) Token

	// Drain returns messages queued since the last call.
	Drain() []Message

	// Disconnect closes the session without waiting for in-flight work.
	Disconnect()
}

// finished reports whether tok has completed, without blocking.
func finished(tok Token) bool {
	select {
	case <-tok.Done():
		return true
	default:
		return false
	}
}

// DecodeCommand parses a command payload. Surrounding whitespace is ignored;
// anything other than "0" or "1" is rejected.
func DecodeCommand(payload []byte) (logic.State, bool) {
	switch strings.TrimSpace(string(payload)) {
	case "1":
		return logic.StateOn, true
	case "0":
		return logic.StateOff, true
	default:
		return logic.StateOff, false
	}
}
