// Package combat implements the arena's per-session protocol state machine:
// naming, turn-based strikes, speech and match termination.
package combat

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/session"
	"github.com/cory-johannsen/arena/internal/game/text"
	"github.com/cory-johannsen/arena/internal/observability"
)

// Rules holds the damage rules and drop policy.
type Rules struct {
	// Damage is the base damage interval.
	Damage dice.Range
	// PowerMoveMultiplier scales a landed powermove's base damage.
	PowerMoveMultiplier int
	// PowerMoveHitPercent is the chance a powermove lands.
	PowerMoveHitPercent int
	// RematchOnDrop retries matchmaking for a survivor whose opponent disconnected.
	RematchOnDrop bool
}

// RulesFromConfig converts the game configuration into combat rules.
//
// Postcondition: Returns Rules with a validated damage range, or an error.
func RulesFromConfig(g config.GameConfig) (Rules, error) {
	r := Rules{
		Damage:              dice.Range{Min: g.Damage.Min, Max: g.Damage.Max},
		PowerMoveMultiplier: g.PowerMoveMultiplier,
		PowerMoveHitPercent: g.PowerMoveHitPercent,
		RematchOnDrop:       g.RematchOnDrop,
	}
	if err := r.Damage.Validate(); err != nil {
		return Rules{}, fmt.Errorf("damage: %w", err)
	}
	return r, nil
}

// Matcher pairs a freed session with a waiting opponent.
type Matcher interface {
	TryMatch(s *session.Session) bool
}

// Engine interprets client input against each session's protocol state.
//
// Engine is not safe for concurrent use; it runs on the event loop.
type Engine struct {
	reg     *session.Registry
	matcher Matcher
	roller  *dice.Roller
	rules   Rules
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewEngine creates an Engine.
//
// Precondition: reg, matcher, roller and logger must be non-nil; metrics may be nil.
func NewEngine(reg *session.Registry, matcher Matcher, roller *dice.Roller, rules Rules, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		reg:     reg,
		matcher: matcher,
		roller:  roller,
		rules:   rules,
		logger:  logger,
		metrics: metrics,
	}
}

// HandleInput feeds every byte of p to HandleByte in order.
func (e *Engine) HandleInput(s *session.Session, p []byte) {
	for _, b := range p {
		e.HandleByte(s, b)
	}
}

// HandleByte processes one byte received from s.
//
// Precondition: s is registered.
// Postcondition: Bytes that are not valid for the current state are discarded
// without any reply or state change.
func (e *Engine) HandleByte(s *session.Session, b byte) {
	switch s.State {
	case session.StateAwaitingName:
		if line, ok := s.Input.Feed(b); ok {
			e.name(s, trimLine(line))
		}
	case session.StateSpeaking:
		e.speech(s, b)
	case session.StateInMatch:
		e.command(s, b)
	default:
		// idle input is discarded
	}
}

// name completes the naming stage and offers s to the matchmaker.
func (e *Engine) name(s *session.Session, name string) {
	s.Name = name
	s.State = session.StateIdle
	s.Engaged = false

	e.reg.Send(s, text.Welcome(name))
	e.reg.Broadcast(s.Handle(), text.Arrival(name))
	e.logger.Info("player entered the arena",
		zap.String("conn_id", s.ConnID),
		zap.String("player", name),
	)
	e.matcher.TryMatch(s)
}

// command applies a single-byte command from a session in a live match.
func (e *Engine) command(s *session.Session, b byte) {
	if !s.Engaged || !s.Active {
		return
	}
	cmd, ok := ParseCommand(b)
	if !ok {
		return
	}
	opp, ok := e.opponent(s)
	if !ok {
		return
	}

	switch cmd {
	case CommandSpeak:
		e.reg.Send(s, text.SpeakPrompt)
		s.State = session.StateSpeaking
	case CommandAttack, CommandPowerMove:
		e.strike(s, opp, cmd)
	}
}

// strike resolves an attack or powermove by s against opp.
func (e *Engine) strike(s, opp *session.Session, cmd Command) {
	if cmd == CommandPowerMove && s.PowerMoves <= 0 {
		e.logger.Debug("powermove ignored, no charges left", zap.String("player", s.Name))
		return
	}

	damage := e.roller.Roll("damage", e.rules.Damage)
	outcome := observability.OutcomeHit

	switch cmd {
	case CommandAttack:
		e.reg.Send(s, text.YouHit(opp.Name, damage))
		e.reg.Send(opp, text.HitsYou(s.Name, damage))
		opp.HitPoints -= damage
	case CommandPowerMove:
		s.PowerMoves--
		if e.roller.Chance("powermove", e.rules.PowerMoveHitPercent) {
			damage *= e.rules.PowerMoveMultiplier
			e.reg.Send(s, text.YouHit(opp.Name, damage))
			e.reg.Send(opp, text.PowerMovesYou(s.Name, damage))
			opp.HitPoints -= damage
		} else {
			damage = 0
			outcome = observability.OutcomeMiss
			e.reg.Send(s, text.MissedYou)
			e.reg.Send(opp, text.MissedBy(s.Name))
		}
	}

	e.metrics.Strike(cmd.metricMove(), outcome)
	e.logger.Debug("strike resolved",
		zap.String("player", s.Name),
		zap.String("opponent", opp.Name),
		zap.Stringer("command", cmd),
		zap.String("outcome", outcome),
		zap.Int("damage", damage),
		zap.Int("opponent_hp", opp.HitPoints),
	)

	if opp.HitPoints > 0 {
		s.Active = false
		opp.Active = true
		match.ShowStats(e.reg, opp, s)
		match.ShowMenu(e.reg, s, opp)
		match.ShowMenu(e.reg, opp, s)
		return
	}
	e.finish(s, opp)
}

// finish ends the match won by winner, requeues both players at the registry
// tail and offers each to the matchmaker.
func (e *Engine) finish(winner, loser *session.Session) {
	e.reg.Send(winner, text.Victory(loser.Name))
	e.reg.Send(loser, text.Defeat(winner.Name))

	for _, p := range []*session.Session{winner, loser} {
		p.Engaged = false
		p.Active = false
		p.State = session.StateIdle
	}
	e.reg.MoveToTail(winner.Handle(), loser.Handle())

	e.metrics.MatchFinished(observability.ReasonDefeat)
	e.logger.Info("match finished",
		zap.String("winner", winner.Name),
		zap.String("loser", loser.Name),
		zap.Int("winner_hp", winner.HitPoints),
	)

	e.matcher.TryMatch(winner)
	e.matcher.TryMatch(loser)
}

// speech accumulates a line of speech from s and relays it once complete.
func (e *Engine) speech(s *session.Session, b byte) {
	// A line ending right after the 's' is the rest of the command line.
	if s.Input.Len() == 0 && (b == '\r' || b == '\n') {
		return
	}
	line, ok := s.Input.Feed(b)
	if !ok {
		return
	}
	msg := trimLine(line)
	s.State = session.StateInMatch

	opp, ok := e.opponent(s)
	if !ok {
		return
	}
	e.reg.Send(s, text.SpeechEcho(msg))
	e.reg.Send(opp, text.SpeechRelay(s.Name, msg))
	match.ShowStats(e.reg, s, opp)
	match.ShowMenu(e.reg, s, opp)
	match.ShowMenu(e.reg, opp, s)
}

// Disconnect runs the departure of s and removes it from the registry.
//
// Postcondition: s is no longer registered. If s was in a live match its
// opponent has been told it won and is reset to an unmatched, idle state.
// No registered session retains s as its LastOpponent.
func (e *Engine) Disconnect(s *session.Session) {
	opp, hasOpp := e.reg.Get(s.LastOpponent)
	dropped := false

	switch {
	case s.Engaged && s.Named():
		if !hasOpp {
			e.logger.Error("session invariant violated: live match without opponent",
				zap.String("conn_id", s.ConnID),
				zap.String("player", s.Name),
			)
			break
		}
		e.reg.Send(opp, text.Dropped(s.Name))
		opp.Reset()
		dropped = true
		e.metrics.MatchFinished(observability.ReasonDrop)
		e.logger.Info("match abandoned",
			zap.String("player", s.Name),
			zap.String("winner", opp.Name),
		)
	case hasOpp && opp.LastOpponent == s.Handle():
		opp.LastOpponent = session.Handle{}
	}

	if s.Named() {
		e.reg.Broadcast(s.Handle(), text.Departure(s.Name))
	}
	e.reg.Remove(s.Handle())

	if dropped && e.rules.RematchOnDrop {
		e.matcher.TryMatch(opp)
	}
}

// opponent resolves the match partner of s, logging an invariant failure
// and resetting s when it has none.
func (e *Engine) opponent(s *session.Session) (*session.Session, bool) {
	opp, ok := e.reg.Get(s.LastOpponent)
	if !ok {
		e.logger.Error("session invariant violated: in match without opponent",
			zap.String("conn_id", s.ConnID),
			zap.String("player", s.Name),
			zap.Stringer("state", s.State),
		)
		s.Reset()
		return nil, false
	}
	return opp, true
}

// trimLine drops the carriage return of a CRLF-terminated line.
func trimLine(line string) string {
	return strings.TrimSuffix(line, "\r")
}
