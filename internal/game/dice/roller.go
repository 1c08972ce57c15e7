package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger to provide logged rolls.
// Every roll is logged at debug level with its label, range and result.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewRoller creates a Roller that draws from src and logs to logger.
//
// Precondition: src and logger must be non-nil.
func NewRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Roll draws a value from r and logs it under label.
//
// Precondition: r.Validate() == nil.
// Postcondition: r.Contains(result).
func (r *Roller) Roll(label string, rng Range) int {
	v := rng.Roll(r.src)
	r.logger.Debug("dice roll",
		zap.String("roll", label),
		zap.Stringer("range", rng),
		zap.Int("result", v),
	)
	return v
}

// Chance returns true with probability percent/100.
//
// Precondition: 0 <= percent <= 100.
func (r *Roller) Chance(label string, percent int) bool {
	v := r.src.Intn(100)
	hit := v < percent
	r.logger.Debug("dice chance",
		zap.String("roll", label),
		zap.Int("percent", percent),
		zap.Bool("hit", hit),
	)
	return hit
}

// Coin returns true or false with equal probability.
func (r *Roller) Coin(label string) bool {
	heads := r.src.Intn(2) == 1
	r.logger.Debug("dice coin",
		zap.String("roll", label),
		zap.Bool("heads", heads),
	)
	return heads
}
