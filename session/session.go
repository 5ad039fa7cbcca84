// Package session owns the handshake state machine, the per-message
// encrypt/decrypt pipeline, background rotation, and heartbeat scheduling:
// everything that turns a raw Transport into Aegis's secure duplex chat
// stream. Grounded on the teacher's core/session package — a single owner
// holding all mutable per-connection state, with background bookkeeping run
// on a ticker+select goroutine (core/session/manager.go's runCleanup).
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/aegis-chat/aegis/internal/logger"
	"github.com/aegis-chat/aegis/internal/metrics"
	"github.com/aegis-chat/aegis/peer"
	"github.com/aegis-chat/aegis/ratchet"
	"github.com/aegis-chat/aegis/replay"
	"github.com/aegis-chat/aegis/transport"
)

// Config governs the limits and cadences a Session enforces once established.
type Config struct {
	RotationInterval  time.Duration
	HeartbeatInterval time.Duration
	MaxFrameSize      int
	MaxSkipped        int
	OutboundQueueSize int
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		RotationInterval:  60 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxFrameSize:      16 * 1024 * 1024,
		MaxSkipped:        ratchet.DefaultMaxSkipped,
		OutboundQueueSize: 256,
	}
}

// outboundItem is a plaintext payload queued for the run loop to encrypt
// and write, paired with the frame type it should be sent as.
type outboundItem struct {
	kind    outboundKind
	payload []byte
	done    chan error // optional: non-nil when the caller wants to know the write outcome
}

type outboundKind int

const (
	kindData outboundKind = iota
	kindClose
)

// Session is the exclusive owner of one connection's peer record, ratchet,
// and replay guard. All of that state is touched only by the run loop
// goroutine; callers interact exclusively through the channel-based Send,
// Recv, and Close methods.
type Session struct {
	id   string
	role ratchet.Role
	cfg  Config

	transport transport.Transport
	ratchet   *ratchet.State
	recvWin   *replay.Window
	peer      *peer.Record

	outbound chan outboundItem
	inbound  chan []byte // delivered Data payloads, for the application to Recv

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	closeMu   sync.Mutex

	log logger.Logger
}

// newBase builds the shared parts of a Session before the handshake runs.
func newBase(t transport.Transport, cfg Config, log logger.Logger) *Session {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	id := "unknown"
	if u, err := uuid.NewRandom(); err == nil {
		id = u.String()
	}
	return &Session{
		id:        id,
		cfg:       cfg,
		transport: t,
		recvWin:   &replay.Window{},
		peer:      peer.New(cfg.HeartbeatInterval),
		outbound:  make(chan outboundItem, cfg.OutboundQueueSize),
		inbound:   make(chan []byte, cfg.OutboundQueueSize),
		closed:    make(chan struct{}),
		log:       log.WithFields(logger.String("session_id", id)),
	}
}

// Established reports whether the handshake completed and the run loop can
// be started.
func (s *Session) Established() bool { return s.peer.State() == peer.Established }

// ID returns the session's diagnostic identifier (never persisted, never
// derived from key material).
func (s *Session) ID() string { return s.id }

// Generation returns the current ratchet generation, for logging/metrics.
func (s *Session) Generation() uint16 { return s.ratchet.Generation() }

// Send enqueues an application payload for encryption and transmission. It
// blocks when the outbound queue is full, which is the system's only
// backpressure mechanism.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	select {
	case <-s.closed:
		return aerr.New(aerr.IoError, "session is closed")
	default:
	}
	select {
	case s.outbound <- outboundItem{kind: kindData, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return aerr.New(aerr.IoError, "session is closed")
	}
}

// Recv returns the channel of successfully decrypted Data payloads.
func (s *Session) Recv() <-chan []byte { return s.inbound }

// Done is closed once the run loop has fully torn the session down.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closeErr
}

// Close requests a clean shutdown: a Close frame is sent if the transport
// still accepts writes, then the run loop tears down and zeroizes.
func (s *Session) Close() error {
	select {
	case s.outbound <- outboundItem{kind: kindClose}:
	default:
	}
	s.shutdown(nil)
	<-s.closed
	return s.Err()
}

// shutdown is the single path that closes s.closed and releases resources;
// safe to call from any goroutine, any number of times.
func (s *Session) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
		s.closeMu.Unlock()

		_ = s.peer.BeginClosing()
		_ = s.transport.Close()
		if s.ratchet != nil {
			s.ratchet.Close()
		}
		_ = s.peer.FinishClosing()
		metrics.SessionsClosed.Inc()
		close(s.closed)
	})
}

// ActiveSessions and OldestActivity satisfy health.SessionSource for a
// single session; a listener aggregating many sessions composes these.
func (s *Session) ActiveSessions() int {
	if s.Established() {
		return 1
	}
	return 0
}

func (s *Session) OldestActivity() (time.Time, bool) {
	if !s.Established() {
		return time.Time{}, false
	}
	return s.peer.LastActivity(), true
}
