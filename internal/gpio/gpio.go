// Package gpio provides the relay, LED and switch lines with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Input reads the momentary wall switch.
type Input interface {
	// Read returns true while the switch contact is closed.
	// The line is pulled up, so closed = raw low.
	Read() (bool, error)
}

// Output drives a digital output line.
type Output interface {
	// Set drives the line high (true) or low (false).
	Set(high bool) error
}

// Pin definitions (BCM numbering)
const (
	DefaultRelayPin  = 26
	DefaultLEDPin    = 19
	DefaultSwitchPin = 27
)
