// Package tcp accepts raw TCP arena clients and turns their traffic into
// events for the single-goroutine game loop.
package tcp

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn wraps an accepted TCP connection.
// Reads are performed only by the acceptor's reader goroutine; writes may
// come from any goroutine.
type Conn struct {
	id  string
	raw net.Conn

	mu           sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// NewConn wraps raw and assigns it a fresh connection id.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for writing.
func NewConn(raw net.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		id:           uuid.NewString(),
		raw:          raw,
		writeTimeout: writeTimeout,
	}
}

// ID returns the unique connection id.
func (c *Conn) ID() string {
	return c.id
}

// Send writes p to the client in full.
//
// Postcondition: Returns the write error, if any. The connection stays open
// either way.
func (c *Conn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.raw.Write(p)
	return err
}

// Close closes the underlying TCP connection. Repeated calls return the
// result of the first.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
