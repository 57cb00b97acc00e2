//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Chip owns the requested lines on one GPIO chip.
type Chip struct {
	chip    *gpiocdev.Chip
	outputs []*gpiocdev.Line
	inputs  []*gpiocdev.Line
}

// OpenChip opens a GPIO chip by name, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

// Output requests pin as an output driven to the initial level.
func (c *Chip) Output(pin int, initial bool) (*LineOutput, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(level(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	c.outputs = append(c.outputs, line)
	return &LineOutput{line: line, pin: pin}, nil
}

// Input requests pin as an input with the internal pull-up enabled.
func (c *Chip) Input(pin int) (*LineInput, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	c.inputs = append(c.inputs, line)
	return &LineInput{line: line, pin: pin}, nil
}

// Close releases all lines and the chip.
// Outputs are reconfigured to input with pull-down first so the relay
// drops out and the pins match the Pi boot defaults across a reboot.
func (c *Chip) Close() error {
	var errs []error

	for _, line := range c.outputs {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output: %w", err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output: %w", err))
		}
	}
	for _, line := range c.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input: %w", err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// LineOutput is a requested output line.
type LineOutput struct {
	line *gpiocdev.Line
	pin  int
}

// Set drives the line.
func (o *LineOutput) Set(high bool) error {
	if err := o.line.SetValue(level(high)); err != nil {
		return fmt.Errorf("set pin %d: %w", o.pin, err)
	}
	return nil
}

// LineInput is a requested input line.
type LineInput struct {
	line *gpiocdev.Line
	pin  int
}

// Read returns true while the switch is closed (raw low).
func (i *LineInput) Read() (bool, error) {
	v, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", i.pin, err)
	}
	return v == 0, nil
}

func level(high bool) int {
	if high {
		return 1
	}
	return 0
}
