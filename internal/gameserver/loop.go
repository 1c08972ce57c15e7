// Package gameserver runs the arena event loop and its HTTP side channel.
package gameserver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/frontend/tcp"
	"github.com/cory-johannsen/arena/internal/game/combat"
	"github.com/cory-johannsen/arena/internal/game/session"
	"github.com/cory-johannsen/arena/internal/game/text"
	"github.com/cory-johannsen/arena/internal/observability"
)

// Loop is the single goroutine that owns every session. It drains the inbox
// one event at a time and runs all game logic to completion before taking
// the next event.
type Loop struct {
	inbox   chan tcp.Event
	reg     *session.Registry
	engine  *combat.Engine
	logger  *zap.Logger
	metrics *observability.Metrics

	conns    map[string]*tcp.Conn
	sessions atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewLoop creates a Loop with an inbox of cfg.InboxSize events.
//
// Precondition: reg, engine and logger must be non-nil; metrics may be nil.
// Postcondition: Returns a Loop ready to Run.
func NewLoop(cfg config.ArenaConfig, reg *session.Registry, engine *combat.Engine, logger *zap.Logger, metrics *observability.Metrics) *Loop {
	return &Loop{
		inbox:   make(chan tcp.Event, cfg.InboxSize),
		reg:     reg,
		engine:  engine,
		logger:  logger,
		metrics: metrics,
		conns:   make(map[string]*tcp.Conn),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Inbox returns the channel connection readers post to.
func (l *Loop) Inbox() chan<- tcp.Event {
	return l.inbox
}

// Sessions returns the number of currently registered sessions.
// It is safe to call from any goroutine.
func (l *Loop) Sessions() int {
	return int(l.sessions.Load())
}

// Run processes events until ctx is cancelled or Stop is called.
//
// Postcondition: Every connection still open when Run returns has been closed.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.closeAll()

	l.logger.Info("event loop running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.stop:
			return nil
		case ev := <-l.inbox:
			l.handle(ev)
		}
	}
}

// Stop ends Run and waits for it to return. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// handle dispatches a single event.
func (l *Loop) handle(ev tcp.Event) {
	switch ev.Kind {
	case tcp.EventConnected:
		l.connected(ev.Conn)
	case tcp.EventData:
		s, ok := l.reg.Lookup(ev.Conn.ID())
		if !ok {
			l.logger.Warn("data for unknown connection", zap.String("conn_id", ev.Conn.ID()))
			return
		}
		l.engine.HandleInput(s, ev.Data)
	case tcp.EventClosed, tcp.EventReadFailed:
		l.disconnected(ev)
	default:
		l.logger.Error("unknown event kind", zap.Stringer("kind", ev.Kind))
	}
}

func (l *Loop) connected(conn *tcp.Conn) {
	s, err := l.reg.Add(conn.ID(), conn.RemoteAddr().String(), conn)
	if err != nil {
		l.logger.Error("registering connection", zap.String("conn_id", conn.ID()), zap.Error(err))
		conn.Close()
		return
	}
	l.conns[conn.ID()] = conn
	l.sessions.Add(1)
	l.metrics.SessionConnected()
	l.logger.Info("session created",
		zap.String("conn_id", s.ConnID),
		zap.String("remote_addr", s.RemoteAddr),
		zap.Int("sessions", l.reg.Len()),
	)
	l.reg.Send(s, text.NamePrompt)
}

func (l *Loop) disconnected(ev tcp.Event) {
	id := ev.Conn.ID()
	s, ok := l.reg.Lookup(id)
	if !ok {
		l.logger.Warn("close for unknown connection", zap.String("conn_id", id))
		ev.Conn.Close()
		return
	}

	fields := []zap.Field{
		zap.String("conn_id", id),
		zap.String("player", s.Name),
		zap.Stringer("state", s.State),
	}
	if ev.Kind == tcp.EventReadFailed {
		l.metrics.ReadFailed()
		l.logger.Warn("read failed, dropping session", append(fields, zap.Error(ev.Err))...)
	} else {
		l.logger.Info("client disconnected", fields...)
	}

	l.engine.Disconnect(s)
	delete(l.conns, id)
	ev.Conn.Close()
	l.sessions.Add(-1)
	l.metrics.SessionDisconnected()
}

// closeAll closes every connection still held by the loop.
func (l *Loop) closeAll() {
	start := time.Now()
	for id, conn := range l.conns {
		conn.Close()
		delete(l.conns, id)
	}
	l.logger.Info("event loop stopped",
		zap.Int("sessions", l.reg.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
}
