// TLS 1.3 wrapping for the transport, explicitly not production-grade: it
// exists so the CLI's optional --tls flag has something to do for local
// testing, and is never exercised by the cryptographic core's own tests.
// Certificate verification can be disabled via TLSConfig.InsecureSkipVerify;
// nothing is logged or printed when it is set.
package transport

import (
	"crypto/tls"
	"net"

	"github.com/aegis-chat/aegis/internal/aerr"
)

// TLSConfig configures the non-production TLS wrapper.
type TLSConfig struct {
	// ServerName is used for SNI and certificate verification on the client side.
	ServerName string
	// InsecureSkipVerify disables certificate verification entirely. Never
	// set this outside local testing — there is no PKI story here (see
	// spec.md §1's non-goals: "certificate PKI" is explicitly out of scope).
	InsecureSkipVerify bool
	// Certificate is the server-side self-signed (or test) certificate.
	Certificate *tls.Certificate
}

// WrapClient negotiates a TLS 1.3 client connection over an already-dialed
// net.Conn and returns a Transport.
func WrapClient(nc net.Conn, cfg TLSConfig) (*Conn, error) {
	tc := tls.Client(nc, &tls.Config{
		MinVersion:         tls.VersionTLS13,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err := tc.Handshake(); err != nil {
		return nil, aerr.Wrap(aerr.IoError, "tls client handshake", err)
	}
	return NewConn(tc), nil
}

// WrapServer upgrades an accepted net.Conn to TLS 1.3 using cfg.Certificate.
func WrapServer(nc net.Conn, cfg TLSConfig) (*Conn, error) {
	if cfg.Certificate == nil {
		return nil, aerr.New(aerr.IoError, "tls server requires a certificate")
	}
	tc := tls.Server(nc, &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{*cfg.Certificate},
	})
	if err := tc.Handshake(); err != nil {
		return nil, aerr.Wrap(aerr.IoError, "tls server handshake", err)
	}
	return NewConn(tc), nil
}
