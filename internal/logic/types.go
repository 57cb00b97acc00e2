// Package logic contains the lamp's state logic: the single authoritative
// on/off value and the switch debouncer.
// Hardware, transport and UI are reached only through small interfaces, and
// time is always injectable via time.Time parameters.
package logic

// State is the lamp's on/off value.
type State int

const (
	StateOff State = 0
	StateOn  State = 1
)

// String returns "ON" or "OFF".
func (s State) String() string {
	if s == StateOn {
		return "ON"
	}
	return "OFF"
}

// Payload returns the wire form used on the command topic: "1" or "0".
func (s State) Payload() string {
	if s == StateOn {
		return "1"
	}
	return "0"
}

// Toggled returns the opposite state.
func (s State) Toggled() State {
	if s == StateOn {
		return StateOff
	}
	return StateOn
}

// StateFromBool maps true to StateOn.
func StateFromBool(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}
