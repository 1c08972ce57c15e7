package tcp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
)

// Acceptor listens for arena clients on a TCP port. Each accepted connection
// is announced on the inbox and then served by its own reader goroutine,
// which only copies bytes into events.
type Acceptor struct {
	cfg    config.ArenaConfig
	inbox  chan<- Event
	logger *zap.Logger

	listener net.Listener
	conns    map[*Conn]struct{}
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
	stopped  bool
}

// NewAcceptor creates an acceptor posting events to inbox.
//
// Precondition: cfg must have a valid port and a positive ReadChunkSize;
// inbox and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ArenaConfig, inbox chan<- Event, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:    cfg,
		inbox:  inbox,
		logger: logger,
		conns:  make(map[*Conn]struct{}),
		quit:   make(chan struct{}),
	}
}

// ListenAndServe starts the TCP listener and accepts connections until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		listener.Close()
		return nil
	}
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("arena acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		conn := NewConn(raw, a.cfg.WriteTimeout)
		a.logger.Info("client connected",
			zap.String("conn_id", conn.ID()),
			zap.String("remote_addr", raw.RemoteAddr().String()),
		)
		if !a.track(conn) {
			conn.Close()
			return nil
		}
		if !a.post(Event{Kind: EventConnected, Conn: conn}) {
			a.untrack(conn)
			a.wg.Done()
			conn.Close()
			return nil
		}
		go a.read(conn)
	}
}

// read copies chunks from conn into the inbox until the stream ends.
func (a *Acceptor) read(conn *Conn) {
	defer a.wg.Done()
	defer a.untrack(conn)
	start := time.Now()

	buf := make([]byte, a.cfg.ReadChunkSize)
	for {
		n, err := conn.raw.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !a.post(Event{Kind: EventData, Conn: conn, Data: data}) {
				return
			}
		}
		if err == nil {
			continue
		}

		ev := Event{Kind: EventClosed, Conn: conn}
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			ev.Kind = EventReadFailed
			ev.Err = err
		}
		a.logger.Debug("reader finished",
			zap.String("conn_id", conn.ID()),
			zap.Stringer("event", ev.Kind),
			zap.Duration("duration", time.Since(start)),
		)
		a.post(ev)
		return
	}
}

// post delivers ev to the inbox, blocking while it is full.
//
// Postcondition: Returns false without delivering if the acceptor is stopping.
func (a *Acceptor) post(ev Event) bool {
	select {
	case a.inbox <- ev:
		return true
	case <-a.quit:
		return false
	}
}

// track registers conn and reserves a reader slot in the wait group.
func (a *Acceptor) track(conn *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	a.conns[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(conn *Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, conn)
}

// Stop closes the listener and every open connection, then waits for all
// reader goroutines to exit.
//
// Postcondition: No reader goroutines remain and no further events are posted.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.running = false
	close(a.quit)
	if a.listener != nil {
		a.listener.Close()
	}
	for conn := range a.conns {
		conn.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("arena acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
