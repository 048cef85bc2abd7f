package openwebnet

import (
	"fmt"
	"regexp"
)

// Mode selects the session a connection asks for after the first ACK.
type Mode int

const (
	// ModeCommand connections carry one request/response exchange.
	ModeCommand Mode = iota
	// ModeMonitor connections stay open and receive unsolicited events.
	ModeMonitor
	// ModeConfig connections are used for system scans.
	ModeConfig
)

// String returns the short tag used in frame logs.
func (m Mode) String() string {
	switch m {
	case ModeCommand:
		return "CMD"
	case ModeMonitor:
		return "MON"
	case ModeConfig:
		return "CNF"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// StartFrame returns the frame that opens a session of this mode.
func (m Mode) StartFrame() string {
	switch m {
	case ModeMonitor:
		return StartMonitorFrame
	case ModeConfig:
		return StartConfigFrame
	default:
		return StartCommandFrame
	}
}

// State is the handshake state of one connection.
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateLoggingIn
	// StateLoginStalled is LoggingIn after the gateway answered the login
	// token with something other than ACK (typically NACK). Nothing is sent
	// and the connection stays open; a later ACK still completes the login.
	StateLoginStalled
	StateConnected
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateLoggingIn:
		return "logging_in"
	case StateLoginStalled:
		return "login_stalled"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventKind identifies a lifecycle event.
type EventKind int

const (
	EventConnecting EventKind = iota
	EventLoggingIn
	EventConnected
	// EventFrame carries a frame received after authentication.
	EventFrame
)

// String returns a human-readable event name
func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventLoggingIn:
		return "logging_in"
	case EventConnected:
		return "connected"
	case EventFrame:
		return "frame"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is emitted by a connection. Frame is set for EventFrame only.
type Event struct {
	Kind  EventKind
	Frame string
}

// ResponseFunc derives the login token from the password and the decimal
// nonce sent by the gateway. It must be deterministic and side-effect free.
type ResponseFunc func(password, nonce string) (string, error)

// Step is the outcome of feeding one frame to the handshake.
type Step struct {
	State  State
	Events []Event
	Send   []string
	// Note explains why a frame was ignored; empty when it was consumed.
	Note string
}

var noncePattern = regexp.MustCompile(`^\*#(\d+)##$`)

// Transition is the handshake state function. It never touches a socket:
// the caller sends Step.Send and delivers Step.Events.
func Transition(state State, frame string, p Params) Step {
	switch state {
	case StateUnconnected:
		if frame != ACK {
			return Step{State: state, Note: "waiting for initial ACK"}
		}
		return Step{
			State:  StateConnecting,
			Events: []Event{{Kind: EventConnecting}},
			Send:   []string{p.Mode.StartFrame()},
		}

	case StateConnecting:
		if frame == ACK {
			// no password, or the gateway already trusts us
			return Step{State: StateConnected, Events: []Event{{Kind: EventConnected}}}
		}
		m := noncePattern.FindStringSubmatch(frame)
		if m == nil {
			return Step{State: state, Note: "unable to recognize packet"}
		}
		token, err := p.respond()(p.Password, m[1])
		if err != nil {
			return Step{State: state, Note: fmt.Sprintf("cannot answer nonce: %v", err)}
		}
		return Step{
			State:  StateLoggingIn,
			Events: []Event{{Kind: EventLoggingIn}},
			Send:   []string{"*#" + token + "##"},
		}

	case StateLoggingIn, StateLoginStalled:
		if frame == ACK {
			return Step{State: StateConnected, Events: []Event{{Kind: EventConnected}}}
		}
		return Step{State: StateLoginStalled, Note: "got unexpected packet"}

	case StateConnected:
		return Step{State: state, Events: []Event{{Kind: EventFrame, Frame: frame}}}
	}

	return Step{State: state, Note: "unknown state"}
}

// Machine applies Transition to a running state. It is what Conn uses
// internally and is handy for driving a handshake without a socket.
type Machine struct {
	params Params
	state  State
}

// NewMachine returns a Machine in StateUnconnected.
func NewMachine(p Params) *Machine {
	return &Machine{params: p}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Feed applies one frame and returns the resulting step.
func (m *Machine) Feed(frame string) Step {
	step := Transition(m.state, frame, m.params)
	m.state = step.State
	return step
}
