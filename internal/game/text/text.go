// Package text renders every message the arena server sends to clients.
package text

import "fmt"

// Fixed prompts.
const (
	NamePrompt  = "What is your name? "
	SpeakPrompt = "\nSpeak: "
	MissedYou   = "\nYou missed!\n"

	menuWithPowerMove = "\n(a)ttack\n(p)owermove\n(s)peak something\n"
	menuBasic         = "\n(a)ttack\n(s)peak something\n"
	awaitingNext      = "\n\nAwaiting next opponent...\n"
)

// Welcome greets a newly named player.
func Welcome(name string) string {
	return fmt.Sprintf("Welcome, %s! Awaiting opponent...\n", name)
}

// Arrival announces a newly named player to everyone else.
func Arrival(name string) string {
	return fmt.Sprintf("**%s enters the arena**\n", name)
}

// Departure announces a named player's disconnect to everyone else.
func Departure(name string) string {
	return fmt.Sprintf("**%s leaves**\n", name)
}

// Engage tells a player who their new opponent is.
func Engage(opponent string) string {
	return fmt.Sprintf("You engage %s!\n", opponent)
}

// Stats renders a player's own hitpoints and powermoves and the opponent's
// hitpoints. The opponent's powermoves stay hidden.
func Stats(hitPoints, powerMoves int, opponent string, opponentHitPoints int) string {
	return fmt.Sprintf("Your hitpoints: %d\nYour powermoves: %d\n\n%s's hitpoints: %d\n",
		hitPoints, powerMoves, opponent, opponentHitPoints)
}

// Menu lists the commands available to the turn owner.
func Menu(powerMoves int) string {
	if powerMoves > 0 {
		return menuWithPowerMove
	}
	return menuBasic
}

// Waiting tells the player without the turn whose move it is.
func Waiting(opponent string) string {
	return fmt.Sprintf("Waiting for %s to strike...\n", opponent)
}

// YouHit narrates a landed strike to the attacker.
func YouHit(opponent string, damage int) string {
	return fmt.Sprintf("\nYou hit %s for %d damage!\n", opponent, damage)
}

// HitsYou narrates a landed regular attack to the victim.
func HitsYou(attacker string, damage int) string {
	return fmt.Sprintf("%s hits you for %d damage!\n", attacker, damage)
}

// PowerMovesYou narrates a landed powermove to the victim.
func PowerMovesYou(attacker string, damage int) string {
	return fmt.Sprintf("%s powermoves you for %d damage!\n", attacker, damage)
}

// MissedBy narrates a missed powermove to the intended victim.
func MissedBy(attacker string) string {
	return fmt.Sprintf("%s missed you!\n", attacker)
}

// Victory tells the winner of a match fought to the end.
func Victory(loser string) string {
	return fmt.Sprintf("%s gives up. You win!%s", loser, awaitingNext)
}

// Defeat tells the loser of a match.
func Defeat(winner string) string {
	return fmt.Sprintf("You are no match for %s. You scurry away...%s", winner, awaitingNext)
}

// Dropped tells a player their opponent disconnected mid-match.
func Dropped(opponent string) string {
	return fmt.Sprintf("--%s dropped. You win!%s", opponent, awaitingNext)
}

// SpeechEcho repeats a player's speech back to them.
func SpeechEcho(msg string) string {
	return fmt.Sprintf("You speak: %s\n\n", msg)
}

// SpeechRelay delivers a player's speech to their opponent.
func SpeechRelay(speaker, msg string) string {
	return fmt.Sprintf("%s takes a break to tell you:\n%s\n\n", speaker, msg)
}
