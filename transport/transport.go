// Package transport defines the byte-stream interface the session drives
// the wire protocol over, and a net.Conn-backed implementation of it. Per
// spec §1 the core does not itself implement TCP — it only assumes a
// reliable, ordered, bidirectional byte stream — so this package's only job
// is adapting net.Conn (and, optionally, a TLS-wrapped net.Conn) to that
// minimal surface.
package transport

import (
	"io"
	"net"

	"github.com/aegis-chat/aegis/internal/aerr"
)

// Transport is the minimal byte-stream surface the session needs: exact
// reads, all-or-nothing writes, and close.
type Transport interface {
	ReadExact(buf []byte) error
	WriteAll(buf []byte) error
	Close() error
}

// Conn adapts a net.Conn to Transport.
type Conn struct {
	nc net.Conn
}

// NewConn wraps an established net.Conn (TCP, or a TLS-wrapped TCP conn —
// both satisfy net.Conn identically from this package's point of view).
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// ReadExact fills buf completely or returns an IoError.
func (c *Conn) ReadExact(buf []byte) error {
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return aerr.Wrap(aerr.IoError, "read from transport", err)
	}
	return nil
}

// WriteAll writes every byte of buf or returns an IoError.
func (c *Conn) WriteAll(buf []byte) error {
	if _, err := c.nc.Write(buf); err != nil {
		return aerr.Wrap(aerr.IoError, "write to transport", err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	if err := c.nc.Close(); err != nil {
		return aerr.Wrap(aerr.IoError, "close transport", err)
	}
	return nil
}

// LocalAddr and RemoteAddr expose the underlying net.Conn's addresses, used
// only for logging/CLI output — never part of the cryptographic core's own
// decision-making.
func (c *Conn) LocalAddr() net.Addr  { return c.nc.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }
