package combat

import "github.com/cory-johannsen/arena/internal/observability"

// Command is a single-byte instruction from the turn owner.
type Command byte

const (
	// CommandAttack is a regular attack.
	CommandAttack Command = 'a'
	// CommandPowerMove spends a charge on a high-variance attack.
	CommandPowerMove Command = 'p'
	// CommandSpeak switches the session into speech entry.
	CommandSpeak Command = 's'
)

// ParseCommand maps an input byte to a Command.
//
// Postcondition: ok is false for every byte other than 'a', 'p' and 's'.
func ParseCommand(b byte) (cmd Command, ok bool) {
	switch c := Command(b); c {
	case CommandAttack, CommandPowerMove, CommandSpeak:
		return c, true
	default:
		return 0, false
	}
}

// metricMove returns the strike label for cmd.
func (c Command) metricMove() string {
	if c == CommandPowerMove {
		return observability.MovePowerMove
	}
	return observability.MoveAttack
}

// String returns the command's log name.
func (c Command) String() string {
	switch c {
	case CommandAttack:
		return "attack"
	case CommandPowerMove:
		return "powermove"
	case CommandSpeak:
		return "speak"
	default:
		return "unknown"
	}
}
