package session

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/observability"
)

type slot struct {
	gen  uint32
	sess *Session
}

// Registry is the ordered collection of connected sessions.
//
// Sessions live in an arena of slots addressed by Handle; the registry order
// is a separate sequence of handles, head first. Arrival order determines the
// matchmaking scan order.
//
// Registry is not safe for concurrent use. It is owned by the event loop.
type Registry struct {
	slots   []slot
	free    []uint32
	order   []Handle
	byConn  map[string]Handle
	lineCap int
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRegistry creates an empty Registry whose sessions buffer at most
// lineCap input bytes.
//
// Precondition: logger must be non-nil; metrics may be nil.
func NewRegistry(lineCap int, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		byConn:  make(map[string]Handle),
		lineCap: lineCap,
		logger:  logger,
		metrics: metrics,
	}
}

// Add creates a session for connID and links it at the tail.
//
// Precondition: connID must be non-empty; out must be non-nil.
// Postcondition: The new session is last in order, awaiting its name, and engaged.
// Returns an error if connID is already registered.
func (r *Registry) Add(connID, remoteAddr string, out Sender) (*Session, error) {
	if _, exists := r.byConn[connID]; exists {
		return nil, fmt.Errorf("connection %q already registered", connID)
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}

	sl := &r.slots[idx]
	sl.gen++
	h := Handle{index: idx, gen: sl.gen}
	sess := &Session{
		handle:     h,
		out:        out,
		ConnID:     connID,
		RemoteAddr: remoteAddr,
		Input:      NewLineBuffer(r.lineCap),
		State:      StateAwaitingName,
		Engaged:    true,
	}
	sl.sess = sess

	r.order = append(r.order, h)
	r.byConn[connID] = h
	return sess, nil
}

// Get resolves h to its session.
//
// Postcondition: Returns (session, true) only if h names a currently registered session.
func (r *Registry) Get(h Handle) (*Session, bool) {
	if h.IsZero() || int(h.index) >= len(r.slots) {
		return nil, false
	}
	sl := r.slots[h.index]
	if sl.gen != h.gen || sl.sess == nil {
		return nil, false
	}
	return sl.sess, true
}

// Lookup returns the session registered for connID.
func (r *Registry) Lookup(connID string) (*Session, bool) {
	h, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	return r.Get(h)
}

// Remove unlinks and destroys the session named by h, clearing every other
// session's LastOpponent that points at it.
//
// Postcondition: Returns true if a session was removed. An unknown handle is
// logged as an invariant failure and leaves the registry unchanged.
func (r *Registry) Remove(h Handle) bool {
	sess, ok := r.Get(h)
	if !ok {
		r.logger.Error("registry invariant violated: removing unknown session",
			zap.Stringer("handle", h),
		)
		return false
	}

	i := slices.Index(r.order, h)
	if i < 0 {
		r.logger.Error("registry invariant violated: session missing from order",
			zap.Stringer("handle", h),
			zap.String("conn_id", sess.ConnID),
		)
		return false
	}
	r.order = slices.Delete(r.order, i, i+1)

	for _, other := range r.order {
		if o := r.slots[other.index].sess; o.LastOpponent == h {
			o.LastOpponent = Handle{}
		}
	}

	delete(r.byConn, sess.ConnID)
	r.slots[h.index].sess = nil
	r.free = append(r.free, h.index)
	return true
}

// MoveToTail relocates a and b to the end of the order, a before b.
// Handles not present in the registry are skipped.
//
// Postcondition: Relative order of all other sessions is unchanged.
func (r *Registry) MoveToTail(a, b Handle) {
	kept := r.order[:0]
	var foundA, foundB bool
	for _, h := range r.order {
		switch h {
		case a:
			foundA = true
		case b:
			foundB = true
		default:
			kept = append(kept, h)
		}
	}
	if foundA {
		kept = append(kept, a)
	}
	if foundB && b != a {
		kept = append(kept, b)
	}
	r.order = kept
}

// Sessions returns the registered sessions in order, head first.
//
// Postcondition: The returned slice is a snapshot; mutating it does not affect the registry.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.slots[h.index].sess)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return len(r.order)
}

// Send writes msg to s. A failed write is logged and counted; it never
// changes session state.
func (r *Registry) Send(s *Session, msg string) {
	if err := s.out.Send([]byte(msg)); err != nil {
		r.logger.Warn("write to client failed",
			zap.String("conn_id", s.ConnID),
			zap.String("player", s.Name),
			zap.Error(err),
		)
		r.metrics.WriteFailed()
	}
}

// Broadcast sends msg to every session except the one named by except.
func (r *Registry) Broadcast(except Handle, msg string) {
	for _, h := range r.order {
		if h == except {
			continue
		}
		r.Send(r.slots[h.index].sess, msg)
	}
}
