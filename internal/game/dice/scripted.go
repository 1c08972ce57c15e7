package dice

import "sync"

// ScriptedSource replays a fixed sequence of values, cycling when exhausted.
// Each call to Intn(n) consumes one value v and returns v mod n.
// It exists so tests can force specific rolls.
type ScriptedSource struct {
	mu     sync.Mutex
	values []int
	next   int
	calls  int
}

// NewScriptedSource returns a ScriptedSource replaying values.
//
// Precondition: values must be non-empty and non-negative.
func NewScriptedSource(values ...int) *ScriptedSource {
	if len(values) == 0 {
		panic("dice: NewScriptedSource requires at least one value")
	}
	return &ScriptedSource{values: values}
}

// Intn returns the next scripted value reduced modulo n.
//
// Precondition: n > 0.
func (s *ScriptedSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next]
	s.next = (s.next + 1) % len(s.values)
	s.calls++
	return v % n
}

// Calls returns how many values have been consumed.
func (s *ScriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
