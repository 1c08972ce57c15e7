// Package dice provides the randomness abstraction and inclusive roll ranges
// used by the arena's matchmaker and combat engine.
package dice

import "fmt"

// Source is the randomness provider for rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// Range is an inclusive integer interval [Min, Max].
type Range struct {
	Min int
	Max int
}

// Validate reports whether r is a well-formed interval.
//
// Postcondition: Returns nil iff r.Min <= r.Max.
func (r Range) Validate() error {
	if r.Max < r.Min {
		return fmt.Errorf("dice: range [%d,%d] has max below min", r.Min, r.Max)
	}
	return nil
}

// Contains reports whether v lies within r.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Roll draws a uniformly distributed value from r using src.
//
// Precondition: r.Validate() == nil; src must be non-nil.
// Postcondition: r.Contains(result).
func (r Range) Roll(src Source) int {
	return r.Min + src.Intn(r.Max-r.Min+1)
}

// String renders r as "[min,max]".
func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}
