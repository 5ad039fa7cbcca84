package session

import (
	"context"
	"time"

	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/aegis-chat/aegis/internal/logger"
	"github.com/aegis-chat/aegis/transport"
	"github.com/aegis-chat/aegis/wire"
)

// Run is the session's single run-loop goroutine: the sole owner of the
// ratchet, replay window, and peer record from the moment it starts. A
// separate reader goroutine does nothing but pull raw frames off the
// transport — no crypto state touched there — and hand them to this loop
// over a channel; everything else (outbound sends, rotation, heartbeats,
// timeout detection) is cooperative selection among those suspension
// points, grounded on the teacher's runCleanup ticker+select+stop-channel
// shape in core/session/manager.go. Run blocks until the session ends,
// either because the caller's context is canceled, a fatal error occurs, or
// a Close frame is sent or received.
func (s *Session) Run(ctx context.Context) {
	rawCh := make(chan []byte, 16)
	errCh := make(chan error, 1)
	go s.readLoop(rawCh, errCh)

	rotationTicker := time.NewTicker(s.cfg.RotationInterval)
	defer rotationTicker.Stop()
	heartbeatTicker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx.Err())
			return

		case <-s.closed:
			return

		case err := <-errCh:
			s.shutdown(err)
			return

		case raw, ok := <-rawCh:
			if !ok {
				continue
			}
			outcome, err := s.processInbound(raw)
			if err != nil {
				if ae, isAerr := err.(*aerr.Error); isAerr && !ae.Kind.Fatal() {
					s.log.Warn("dropping frame", logger.Error(err))
					continue
				}
				s.log.Error("fatal error processing inbound frame", logger.Error(err))
				s.shutdown(err)
				return
			}
			if outcome == outcomeCloseRequested {
				s.shutdown(nil)
				return
			}

		case item := <-s.outbound:
			requestedClose := item.kind == kindClose
			if err := s.handleOutbound(item); err != nil {
				s.shutdown(err)
				return
			}
			if requestedClose {
				s.shutdown(nil)
				return
			}

		case <-rotationTicker.C:
			if err := s.drainThenRotate(); err != nil {
				s.shutdown(err)
				return
			}

		case <-heartbeatTicker.C:
			now := time.Now()
			if s.peer.TimedOut(now) {
				s.shutdown(aerr.New(aerr.Timeout, "peer heartbeat timeout"))
				return
			}
			if s.peer.ShouldSendHeartbeat(now) {
				if err := s.encryptAndSend(wire.Heartbeat, nil); err != nil {
					s.shutdown(err)
					return
				}
				s.peer.RecordHeartbeatSent(now)
			}
		}
	}
}

// handleOutbound encrypts and writes one queued item under its frame type.
func (s *Session) handleOutbound(item outboundItem) error {
	var err error
	switch item.kind {
	case kindData:
		err = s.encryptAndSend(wire.Data, item.payload)
	case kindClose:
		err = s.encryptAndSend(wire.Close, nil)
	}
	if item.done != nil {
		item.done <- err
	}
	return err
}

// drainThenRotate flushes every item currently queued in s.outbound through
// the active (pre-rotation) chain before rotating, per the ordering rule
// recorded in session/rotation.go: nothing queued ahead of a rotation may be
// sealed under the new generation.
func (s *Session) drainThenRotate() error {
	for {
		select {
		case item := <-s.outbound:
			if err := s.handleOutbound(item); err != nil {
				return err
			}
		default:
			return s.rotate()
		}
	}
}

// readLoop owns nothing but the transport's read side: it frames raw bytes
// off the wire and forwards them, untouched by any cryptographic state, to
// the run loop. It exits (closing rawCh) on any read error, which the run
// loop observes via errCh.
func (s *Session) readLoop(rawCh chan<- []byte, errCh chan<- error) {
	defer close(rawCh)
	for {
		body, err := readRawBody(s.transport, s.cfg.MaxFrameSize)
		if err != nil {
			select {
			case errCh <- err:
			case <-s.closed:
			}
			return
		}
		select {
		case rawCh <- body:
		case <-s.closed:
			return
		}
	}
}

// readRawBody reads one length-prefixed frame body off t.
func readRawBody(t transport.Transport, maxFrameSize int) ([]byte, error) {
	lenPrefix := make([]byte, 4)
	if err := t.ReadExact(lenPrefix); err != nil {
		return nil, aerr.Wrap(aerr.IoError, "read frame length", err)
	}
	n, err := wire.ReadFrameLen(lenPrefix, maxFrameSize)
	if err != nil {
		return nil, err
	}
	body := make([]byte, n)
	if err := t.ReadExact(body); err != nil {
		return nil, aerr.Wrap(aerr.IoError, "read frame body", err)
	}
	return body, nil
}
