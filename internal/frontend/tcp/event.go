package tcp

import "fmt"

// EventKind identifies what happened on a connection.
type EventKind int

const (
	// EventConnected is posted once, before any data from the connection.
	EventConnected EventKind = iota
	// EventData carries a chunk of bytes read from the connection.
	EventData
	// EventClosed reports an orderly end of stream.
	EventClosed
	// EventReadFailed reports a hard read error; Err is set.
	EventReadFailed
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventData:
		return "data"
	case EventClosed:
		return "closed"
	case EventReadFailed:
		return "read_failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a single connection occurrence delivered to the event loop.
// For a given connection, EventConnected comes first and exactly one of
// EventClosed or EventReadFailed comes last.
type Event struct {
	Kind EventKind
	Conn *Conn
	// Data is owned by the receiver.
	Data []byte
	Err  error
}
