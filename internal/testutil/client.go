// Package testutil provides helpers for end-to-end arena tests.
package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// Client is a raw TCP arena client for integration testing.
// Output read past a match is kept for the next ReadUntil.
type Client struct {
	conn    net.Conn
	pending strings.Builder
	t       *testing.T
}

// NewClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected Client or fails the test.
func NewClient(t *testing.T, addr string) *Client {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("arena client connected to %s [%s]", addr, time.Since(start))
	return &Client{conn: conn, t: t}
}

// ReadUntil reads data until the specified substring is found or timeout occurs.
// It returns everything read up to and including the match.
//
// Precondition: substr must be non-empty.
// Postcondition: Returns the accumulated output ending in substr, or fails on timeout.
func (c *Client) ReadUntil(substr string, timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	tmp := make([]byte, 1024)
	for {
		if out, ok := c.take(substr); ok {
			return out
		}
		n, err := c.conn.Read(tmp)
		c.pending.Write(tmp[:n])
		if err != nil {
			if out, ok := c.take(substr); ok {
				return out
			}
			c.t.Fatalf("reading until %q: got %q, error: %v", substr, c.pending.String(), err)
		}
	}
}

// take removes and returns the buffered output through the first substr.
func (c *Client) take(substr string) (string, bool) {
	buf := c.pending.String()
	i := strings.Index(buf, substr)
	if i < 0 {
		return "", false
	}
	end := i + len(substr)
	c.pending.Reset()
	c.pending.WriteString(buf[end:])
	return buf[:end], true
}

// Send writes a line of text to the server, appending \r\n.
//
// Precondition: text should not contain trailing newline characters.
// Postcondition: text + \r\n is written to the connection.
func (c *Client) Send(text string) {
	c.t.Helper()
	c.SendRaw(fmt.Sprintf("%s\r\n", text))
}

// SendRaw writes p to the server unchanged.
func (c *Client) SendRaw(p string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write([]byte(p)); err != nil {
		c.t.Fatalf("sending %q: %v", p, err)
	}
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.conn.Close()
}
