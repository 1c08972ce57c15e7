// Package session provides arena session state, per-connection line assembly
// and the ordered session registry owned by the event loop.
package session

import "fmt"

// State is a session's position in the arena protocol.
type State int

const (
	// StateAwaitingName is the initial state; the next line is the display name.
	StateAwaitingName State = iota
	// StateIdle is a named session waiting for an opponent; input is discarded.
	StateIdle
	// StateInMatch is a session in a live match; single-byte commands apply on its turn.
	StateInMatch
	// StateSpeaking is a turn owner composing a line of speech for its opponent.
	StateSpeaking
)

// String returns the state's log name.
func (s State) String() string {
	switch s {
	case StateAwaitingName:
		return "awaiting_name"
	case StateIdle:
		return "idle"
	case StateInMatch:
		return "in_match"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handle is a stable, generation-checked reference to a registry slot.
// The zero Handle refers to no session.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h refers to no session.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

// String renders h as "index#generation" for logging.
func (h Handle) String() string {
	if h.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%d#%d", h.index, h.gen)
}

// Sender is the best-effort write capability of a client connection.
type Sender interface {
	// Send writes p to the client and reports any failure.
	Send(p []byte) error
}

// Session is one connected client and its protocol and match state.
//
// Invariant: Engaged is true iff the session is unnamed or in a live match.
// Invariant: HitPoints and PowerMoves are meaningful only while Engaged.
type Session struct {
	handle Handle
	out    Sender

	// ConnID identifies the underlying connection.
	ConnID string
	// RemoteAddr is the client's network address, for logging.
	RemoteAddr string
	// Name is the display name, set once naming completes.
	Name string
	// Input accumulates bytes until a full line is assembled.
	Input LineBuffer
	// State drives how incoming bytes are interpreted.
	State State
	// Engaged blocks matchmaking while unnamed or in a match.
	Engaged bool
	// Active marks the session allowed to submit the next combat command.
	Active bool
	// HitPoints remaining in the current match.
	HitPoints int
	// PowerMoves remaining in the current match.
	PowerMoves int
	// LastOpponent is a weak reference to the most recent opponent.
	// Resolve it with Registry.Get; it may name a departed session.
	LastOpponent Handle
}

// Handle returns the session's registry handle.
func (s *Session) Handle() Handle {
	return s.handle
}

// Named reports whether the session has completed the naming stage.
func (s *Session) Named() bool {
	return s.State != StateAwaitingName
}

// Reset clears all match state and returns the session to idle.
//
// Precondition: s must be named.
// Postcondition: !Engaged, !Active, State == StateIdle, LastOpponent is zero, Input is empty.
func (s *Session) Reset() {
	s.Engaged = false
	s.Active = false
	s.State = StateIdle
	s.LastOpponent = Handle{}
	s.Input.Reset()
}
