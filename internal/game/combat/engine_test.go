package combat

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/dice"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/session"
	"github.com/cory-johannsen/arena/internal/game/text"
	"github.com/cory-johannsen/arena/internal/observability"
)

type recorder struct {
	out strings.Builder
}

func (r *recorder) Send(p []byte) error {
	r.out.Write(p)
	return nil
}

type fixture struct {
	reg    *session.Registry
	engine *Engine
	prom   *prometheus.Registry
	outs   map[string]*recorder
}

func defaultRules() Rules {
	return Rules{
		Damage:              dice.Range{Min: 2, Max: 6},
		PowerMoveMultiplier: 3,
		PowerMoveHitPercent: 50,
	}
}

func newFixture(t testing.TB, src dice.Source, rules Rules) *fixture {
	logger := zaptest.NewLogger(t)
	prom := prometheus.NewRegistry()
	metrics := observability.NewMetrics(prom)
	reg := session.NewRegistry(session.DefaultLineCapacity, logger, metrics)
	roller := dice.NewRoller(src, logger)
	mm := match.NewMatchmaker(reg, roller, match.Rules{
		HitPoints:  dice.Range{Min: 20, Max: 30},
		PowerMoves: dice.Range{Min: 1, Max: 3},
	}, logger, metrics)
	return &fixture{
		reg:    reg,
		engine: NewEngine(reg, mm, roller, rules, logger, metrics),
		prom:   prom,
		outs:   map[string]*recorder{},
	}
}

// connect registers an unnamed session whose output is recorded under key.
func (f *fixture) connect(t testing.TB, key string) *session.Session {
	rec := &recorder{}
	s, err := f.reg.Add("conn-"+key, "", rec)
	require.NoError(t, err)
	f.outs[key] = rec
	return s
}

// idle registers a named, unmatched session.
func (f *fixture) idle(t testing.TB, name string) *session.Session {
	s := f.connect(t, name)
	s.Name = name
	s.State = session.StateIdle
	s.Engaged = false
	return s
}

// duel puts a and b into a live match with a owning the turn.
func duel(a, b *session.Session, aHP, bHP, aPM, bPM int) {
	for _, s := range []*session.Session{a, b} {
		s.Engaged = true
		s.State = session.StateInMatch
	}
	a.LastOpponent, b.LastOpponent = b.Handle(), a.Handle()
	a.Active, b.Active = true, false
	a.HitPoints, b.HitPoints = aHP, bHP
	a.PowerMoves, b.PowerMoves = aPM, bPM
}

func (f *fixture) output(name string) string {
	return f.outs[name].out.String()
}

func (f *fixture) clear() {
	for _, r := range f.outs {
		r.out.Reset()
	}
}

func (f *fixture) order() []string {
	var out []string
	for _, s := range f.reg.Sessions() {
		out = append(out, s.Name)
	}
	return out
}

func TestRulesFromConfig(t *testing.T) {
	rules, err := RulesFromConfig(config.Default().Game)
	require.NoError(t, err)
	assert.Equal(t, defaultRules(), rules)

	g := config.Default().Game
	g.Damage = config.RangeConfig{Min: 9, Max: 1}
	_, err = RulesFromConfig(g)
	assert.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	for _, b := range []byte("aps") {
		_, ok := ParseCommand(b)
		assert.True(t, ok, "%q should parse", b)
	}
	for _, b := range []byte("xA\n\r ") {
		_, ok := ParseCommand(b)
		assert.False(t, ok, "%q should not parse", b)
	}
	assert.Equal(t, "powermove", CommandPowerMove.String())
}

func TestNaming_AliceAndBobArePaired(t *testing.T) {
	f := newFixture(t, dice.NewSeededSource(7), defaultRules())
	alice := f.connect(t, "Alice")
	bob := f.connect(t, "Bob")

	f.engine.HandleInput(alice, []byte("Alice\r\n"))
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, session.StateIdle, alice.State)
	assert.False(t, alice.Engaged)
	assert.Equal(t, "Welcome, Alice! Awaiting opponent...\n", f.output("Alice"))
	assert.Equal(t, "**Alice enters the arena**\n", f.output("Bob"), "unnamed sessions still hear arrivals")

	f.engine.HandleInput(bob, []byte("Bob\n"))
	assert.Equal(t, session.StateInMatch, alice.State)
	assert.Equal(t, session.StateInMatch, bob.State)
	assert.True(t, alice.Engaged && bob.Engaged)
	assert.True(t, alice.Active != bob.Active, "exactly one side owns the turn")
	for _, s := range []*session.Session{alice, bob} {
		assert.True(t, s.HitPoints >= 20 && s.HitPoints <= 30)
		assert.True(t, s.PowerMoves >= 1 && s.PowerMoves <= 3)
	}

	assert.Contains(t, f.output("Alice"), "**Bob enters the arena**\n")
	assert.Contains(t, f.output("Alice"), "You engage Bob!\n")
	assert.Contains(t, f.output("Bob"), "You engage Alice!\n")
	assert.NotContains(t, f.output("Bob"), "**Bob enters the arena**")

	active, waiting := alice, bob
	if bob.Active {
		active, waiting = bob, alice
	}
	assert.Contains(t, f.output(active.Name), "(a)ttack")
	assert.NotContains(t, f.output(waiting.Name), "(a)ttack")
	assert.Contains(t, f.output(waiting.Name), "Waiting for "+active.Name+" to strike...\n")
}

func TestNaming_PartialInputWaits(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(0), defaultRules())
	alice := f.connect(t, "Alice")
	f.engine.HandleInput(alice, []byte("Ali"))
	assert.Equal(t, session.StateAwaitingName, alice.State)
	assert.True(t, alice.Engaged)
	assert.Empty(t, f.output("Alice"))
}

func TestIdleInputDiscarded(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(0), defaultRules())
	alice := f.idle(t, "Alice")
	f.engine.HandleInput(alice, []byte("aps\nhello\n"))
	assert.Equal(t, session.StateIdle, alice.State)
	assert.Empty(t, f.output("Alice"))
}

func TestAttack_FlipsTurn(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	duel(alice, bob, 25, 20, 1, 1)

	f.engine.HandleByte(alice, 'a')

	assert.Equal(t, 15, bob.HitPoints)
	assert.Equal(t, 25, alice.HitPoints)
	assert.False(t, alice.Active)
	assert.True(t, bob.Active)
	assert.Equal(t,
		"\nYou hit Bob for 5 damage!\n"+
			"Your hitpoints: 25\nYour powermoves: 1\n\nBob's hitpoints: 15\n"+
			"Waiting for Bob to strike...\n",
		f.output("Alice"))
	assert.Equal(t,
		"Alice hits you for 5 damage!\n"+
			"Your hitpoints: 15\nYour powermoves: 1\n\nAlice's hitpoints: 25\n"+
			"\n(a)ttack\n(p)owermove\n(s)peak something\n",
		f.output("Bob"))
}

func TestAttack_DamageWithinRange_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t, dice.NewSeededSource(rapid.Uint64().Draw(rt, "seed")), defaultRules())
		alice := f.idle(t, "Alice")
		bob := f.idle(t, "Bob")
		duel(alice, bob, 25, 30, 0, 0)

		f.engine.HandleByte(alice, 'a')
		dealt := 30 - bob.HitPoints
		assert.True(rt, dealt >= 2 && dealt <= 6, "damage %d outside [2,6]", dealt)
	})
}

func TestAttack_EndsMatchAndRequeues(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	carol := f.connect(t, "Carol")
	duel(alice, bob, 25, 4, 1, 1)

	f.engine.HandleByte(alice, 'a')

	assert.Equal(t, -1, bob.HitPoints)
	for _, s := range []*session.Session{alice, bob} {
		assert.False(t, s.Engaged)
		assert.False(t, s.Active)
		assert.Equal(t, session.StateIdle, s.State)
	}
	assert.Equal(t, []string{"", "Alice", "Bob"}, f.order(), "finished players queue behind waiting ones")
	assert.Equal(t, carol.Handle(), f.reg.Sessions()[0].Handle())
	assert.Equal(t, "\nYou hit Bob for 5 damage!\nBob gives up. You win!\n\nAwaiting next opponent...\n", f.output("Alice"))
	assert.Equal(t, "Alice hits you for 5 damage!\nYou are no match for Alice. You scurry away...\n\nAwaiting next opponent...\n", f.output("Bob"))
	assert.Empty(t, f.output("Carol"))

	assert.NoError(t, testutil.GatherAndCompare(f.prom, strings.NewReader(`
# HELP arena_matches_finished_total Total number of matches that ended, by reason
# TYPE arena_matches_finished_total counter
arena_matches_finished_total{reason="defeat"} 1
`), "arena_matches_finished_total"))
}

func TestMatchEnd_RematchesWithWaitingPlayer(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	dave := f.idle(t, "Dave")
	duel(alice, bob, 25, 1, 1, 1)

	f.engine.HandleByte(alice, 'a')

	assert.True(t, alice.Engaged)
	assert.True(t, dave.Engaged)
	assert.Equal(t, dave.Handle(), alice.LastOpponent)
	assert.Equal(t, alice.Handle(), dave.LastOpponent)
	assert.False(t, bob.Engaged, "no one is left for bob")
	assert.Equal(t, alice.Handle(), bob.LastOpponent, "back-reference survives the match")
	assert.Contains(t, f.output("Dave"), "You engage Alice!\n")
}

func TestMatchEnd_NoCandidateIsIdempotent(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	duel(alice, bob, 25, 1, 1, 1)
	f.engine.HandleByte(alice, 'a')
	f.clear()

	m := f.engine.matcher
	assert.False(t, m.TryMatch(alice))
	assert.False(t, m.TryMatch(bob))
	for _, s := range []*session.Session{alice, bob} {
		assert.False(t, s.Engaged)
		assert.False(t, s.Active)
	}
	assert.Empty(t, f.output("Alice"))
	assert.Empty(t, f.output("Bob"))
}

func TestPowerMove_NoChargesIgnored(t *testing.T) {
	src := dice.NewScriptedSource(3)
	f := newFixture(t, src, defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	duel(alice, bob, 25, 20, 0, 2)

	f.engine.HandleByte(alice, 'p')

	assert.Equal(t, 20, bob.HitPoints)
	assert.Equal(t, 0, alice.PowerMoves)
	assert.True(t, alice.Active)
	assert.False(t, bob.Active)
	assert.Empty(t, f.output("Alice"))
	assert.Empty(t, f.output("Bob"))
	assert.Equal(t, 0, src.Calls(), "no dice may be rolled")
}

func TestPowerMove_Hit(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(2, 10), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	duel(alice, bob, 25, 30, 2, 1)

	f.engine.HandleByte(alice, 'p')

	assert.Equal(t, 18, bob.HitPoints, "4 base damage tripled")
	assert.Equal(t, 1, alice.PowerMoves)
	assert.True(t, bob.Active)
	assert.True(t, strings.HasPrefix(f.output("Alice"), "\nYou hit Bob for 12 damage!\n"))
	assert.True(t, strings.HasPrefix(f.output("Bob"), "Alice powermoves you for 12 damage!\n"))
	assert.Contains(t, f.output("Alice"), "Your powermoves: 1\n")
}

func TestPowerMove_Miss(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(2, 75), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	duel(alice, bob, 25, 30, 1, 1)

	f.engine.HandleByte(alice, 'p')

	assert.Equal(t, 30, bob.HitPoints)
	assert.Equal(t, 0, alice.PowerMoves)
	assert.True(t, bob.Active, "a miss still passes the turn")
	assert.True(t, strings.HasPrefix(f.output("Alice"), text.MissedYou))
	assert.True(t, strings.HasPrefix(f.output("Bob"), "Alice missed you!\n"))

	f.clear()
	bob.Active, alice.Active = false, true
	f.engine.HandleByte(alice, 'p')
	assert.Empty(t, f.output("Alice"), "spent charges cannot be reused")
}

func TestCommand_WrongTurnAndInvalidBytesDiscarded(t *testing.T) {
	src := dice.NewScriptedSource(3)
	f := newFixture(t, src, defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	duel(alice, bob, 25, 20, 1, 1)

	f.engine.HandleInput(bob, []byte("aps\n"))
	f.engine.HandleInput(alice, []byte("x\r\nA"))

	assert.Equal(t, 25, alice.HitPoints)
	assert.Equal(t, 20, bob.HitPoints)
	assert.True(t, alice.Active)
	assert.Equal(t, session.StateInMatch, bob.State)
	assert.Empty(t, f.output("Alice"))
	assert.Empty(t, f.output("Bob"))
	assert.Equal(t, 0, src.Calls())
}

func TestSpeak_RelaysAndKeepsTurn(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	duel(alice, bob, 25, 20, 1, 0)

	f.engine.HandleInput(alice, []byte("s\r\n"))
	assert.Equal(t, session.StateSpeaking, alice.State)
	assert.Equal(t, "\nSpeak: ", f.output("Alice"))
	f.clear()

	f.engine.HandleInput(alice, []byte("good luck\r\n"))

	assert.Equal(t, session.StateInMatch, alice.State)
	assert.True(t, alice.Active, "speaking does not use up the turn")
	assert.Equal(t,
		"You speak: good luck\n\n"+
			"Your hitpoints: 25\nYour powermoves: 1\n\nBob's hitpoints: 20\n"+
			"\n(a)ttack\n(p)owermove\n(s)peak something\n",
		f.output("Alice"))
	assert.Equal(t,
		"Alice takes a break to tell you:\ngood luck\n\n"+
			"Your hitpoints: 20\nYour powermoves: 0\n\nAlice's hitpoints: 25\n"+
			"Waiting for Alice to strike...\n",
		f.output("Bob"))
}

func TestSpeak_CommandBytesAreSpeech(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	duel(alice, bob, 25, 20, 1, 1)

	f.engine.HandleInput(alice, []byte("sa\n"))
	assert.Equal(t, 20, bob.HitPoints, "'a' while speaking is text, not an attack")
	assert.Contains(t, f.output("Bob"), "Alice takes a break to tell you:\na\n\n")
}

func TestDisconnect_MidMatchOpponentWins(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	carol := f.idle(t, "Carol")
	duel(alice, bob, 25, 20, 1, 1)
	alice.State = session.StateSpeaking
	alice.Input.Feed('h')

	f.engine.Disconnect(bob)

	assert.Equal(t, "--Bob dropped. You win!\n\nAwaiting next opponent...\n**Bob leaves**\n", f.output("Alice"))
	assert.Equal(t, "**Bob leaves**\n", f.output("Carol"))
	assert.False(t, alice.Engaged)
	assert.False(t, alice.Active)
	assert.True(t, alice.LastOpponent.IsZero())
	assert.Equal(t, session.StateIdle, alice.State)
	assert.Equal(t, 0, alice.Input.Len())
	assert.False(t, carol.Engaged, "survivor is not re-matched automatically")
	assert.Equal(t, 2, f.reg.Len())
	_, ok := f.reg.Get(bob.Handle())
	assert.False(t, ok)
}

func TestDisconnect_RematchOnDrop(t *testing.T) {
	rules := defaultRules()
	rules.RematchOnDrop = true
	f := newFixture(t, dice.NewScriptedSource(3), rules)
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	carol := f.idle(t, "Carol")
	duel(alice, bob, 25, 20, 1, 1)

	f.engine.Disconnect(bob)

	assert.True(t, alice.Engaged)
	assert.Equal(t, carol.Handle(), alice.LastOpponent)
}

func TestDisconnect_SpeakerCountsAsLiveMatch(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	duel(alice, bob, 25, 20, 1, 1)
	alice.State = session.StateSpeaking

	f.engine.Disconnect(alice)
	assert.Contains(t, f.output("Bob"), "--Alice dropped. You win!")
	assert.False(t, bob.Engaged)
}

func TestDisconnect_AfterMatchClearsBackReference(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	alice := f.idle(t, "Alice")
	bob := f.idle(t, "Bob")
	alice.LastOpponent, bob.LastOpponent = bob.Handle(), alice.Handle()

	f.engine.Disconnect(bob)

	assert.True(t, alice.LastOpponent.IsZero())
	assert.Equal(t, "**Bob leaves**\n", f.output("Alice"))
	assert.False(t, alice.Engaged)
}

func TestDisconnect_UnnamedIsSilent(t *testing.T) {
	f := newFixture(t, dice.NewScriptedSource(3), defaultRules())
	f.idle(t, "Alice")
	ghost := f.connect(t, "ghost")

	f.engine.Disconnect(ghost)
	assert.Empty(t, f.output("Alice"))
	assert.Equal(t, 1, f.reg.Len())
}

// TestCombat_TurnInvariants_Property drives random input through a live match
// and checks turn ownership and powermove accounting after every byte.
func TestCombat_TurnInvariants_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t, dice.NewSeededSource(rapid.Uint64().Draw(rt, "seed")), defaultRules())
		alice := f.idle(t, "Alice")
		bob := f.idle(t, "Bob")
		duel(alice, bob,
			rapid.IntRange(20, 30).Draw(rt, "aliceHP"),
			rapid.IntRange(20, 30).Draw(rt, "bobHP"),
			rapid.IntRange(0, 3).Draw(rt, "alicePM"),
			rapid.IntRange(0, 3).Draw(rt, "bobPM"))

		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			sender := alice
			if rapid.Bool().Draw(rt, "bob") {
				sender = bob
			}
			b := rapid.SampledFrom([]byte("aapsx\nhi")).Draw(rt, "byte")

			pmBefore := sender.PowerMoves
			countsAsPowerMove := b == 'p' && sender.Active && sender.State == session.StateInMatch && pmBefore > 0

			f.engine.HandleByte(sender, b)

			if countsAsPowerMove {
				assert.Equal(rt, pmBefore-1, sender.PowerMoves)
			} else {
				assert.Equal(rt, pmBefore, sender.PowerMoves)
			}
			assert.GreaterOrEqual(rt, alice.PowerMoves, 0)
			assert.GreaterOrEqual(rt, bob.PowerMoves, 0)

			if !alice.Engaged {
				assert.False(rt, bob.Engaged)
				assert.False(rt, alice.Active || bob.Active)
				assert.True(rt, alice.HitPoints <= 0 || bob.HitPoints <= 0)
				return
			}
			assert.True(rt, alice.Active != bob.Active, "exactly one side must own the turn")
		}
	})
}
