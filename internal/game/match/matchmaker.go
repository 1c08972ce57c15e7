// Package match pairs idle arena sessions into new matches.
package match

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/session"
	"github.com/cory-johannsen/arena/internal/game/text"
	"github.com/cory-johannsen/arena/internal/observability"
)

// Rules holds the starting-state ranges for a new match.
type Rules struct {
	HitPoints  dice.Range
	PowerMoves dice.Range
}

// RulesFromConfig converts the game configuration into matchmaking rules.
//
// Postcondition: Returns Rules with validated ranges, or an error.
func RulesFromConfig(g config.GameConfig) (Rules, error) {
	r := Rules{
		HitPoints:  dice.Range{Min: g.HitPoints.Min, Max: g.HitPoints.Max},
		PowerMoves: dice.Range{Min: g.PowerMoves.Min, Max: g.PowerMoves.Max},
	}
	if err := r.HitPoints.Validate(); err != nil {
		return Rules{}, fmt.Errorf("hitpoints: %w", err)
	}
	if err := r.PowerMoves.Validate(); err != nil {
		return Rules{}, fmt.Errorf("powermoves: %w", err)
	}
	return r, nil
}

// Matchmaker pairs idle sessions in registry order.
type Matchmaker struct {
	reg     *session.Registry
	roller  *dice.Roller
	rules   Rules
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewMatchmaker creates a Matchmaker over reg.
//
// Precondition: reg, roller and logger must be non-nil; metrics may be nil.
func NewMatchmaker(reg *session.Registry, roller *dice.Roller, rules Rules, logger *zap.Logger, metrics *observability.Metrics) *Matchmaker {
	return &Matchmaker{
		reg:     reg,
		roller:  roller,
		rules:   rules,
		logger:  logger,
		metrics: metrics,
	}
}

// Eligible reports whether s and opp may be paired right now.
// Neither may be engaged, and neither may be the other's most recent opponent.
func Eligible(s, opp *session.Session) bool {
	if s.Handle() == opp.Handle() || opp.Engaged || !opp.Named() {
		return false
	}
	return s.LastOpponent != opp.Handle() && opp.LastOpponent != s.Handle()
}

// TryMatch pairs s with the first eligible session from the registry head.
//
// Precondition: s is registered.
// Postcondition: Returns true if a match was formed; both sides are then
// engaged, in StateInMatch, and exactly one of them is Active. Returns false
// with no state change and nothing sent when s is unavailable or no
// candidate exists.
func (m *Matchmaker) TryMatch(s *session.Session) bool {
	if s.Engaged || !s.Named() {
		return false
	}

	var opp *session.Session
	for _, cand := range m.reg.Sessions() {
		if Eligible(s, cand) {
			opp = cand
			break
		}
	}
	if opp == nil {
		m.logger.Debug("no opponent available", zap.String("player", s.Name))
		return false
	}

	s.LastOpponent = opp.Handle()
	opp.LastOpponent = s.Handle()
	s.Engaged, opp.Engaged = true, true
	s.State, opp.State = session.StateInMatch, session.StateInMatch
	s.Active, opp.Active = false, false

	s.HitPoints = m.roller.Roll("hitpoints", m.rules.HitPoints)
	opp.HitPoints = m.roller.Roll("hitpoints", m.rules.HitPoints)
	s.PowerMoves = m.roller.Roll("powermoves", m.rules.PowerMoves)
	opp.PowerMoves = m.roller.Roll("powermoves", m.rules.PowerMoves)

	m.reg.Send(opp, text.Engage(s.Name))
	m.reg.Send(s, text.Engage(opp.Name))
	ShowStats(m.reg, opp, s)

	if m.roller.Coin("first strike") {
		s.Active = true
	} else {
		opp.Active = true
	}
	ShowMenu(m.reg, s, opp)
	ShowMenu(m.reg, opp, s)

	m.metrics.MatchStarted()
	m.logger.Info("match started",
		zap.String("player", s.Name),
		zap.String("opponent", opp.Name),
		zap.Int("player_hp", s.HitPoints),
		zap.Int("opponent_hp", opp.HitPoints),
		zap.Bool("player_first", s.Active),
	)
	return true
}

// ShowStats sends each side its own stats and the other's hitpoints.
func ShowStats(reg *session.Registry, a, b *session.Session) {
	reg.Send(a, text.Stats(a.HitPoints, a.PowerMoves, b.Name, b.HitPoints))
	reg.Send(b, text.Stats(b.HitPoints, b.PowerMoves, a.Name, a.HitPoints))
}

// ShowMenu sends s its command menu if it owns the turn, otherwise a notice
// that it is waiting on opp.
func ShowMenu(reg *session.Registry, s, opp *session.Session) {
	if !s.Active {
		reg.Send(s, text.Waiting(opp.Name))
		return
	}
	reg.Send(s, text.Menu(s.PowerMoves))
}
