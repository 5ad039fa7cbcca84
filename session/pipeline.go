package session

import (
	"time"

	"github.com/aegis-chat/aegis/crypto/aead"
	"github.com/aegis-chat/aegis/crypto/random"
	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/aegis-chat/aegis/internal/logger"
	"github.com/aegis-chat/aegis/internal/metrics"
	"github.com/aegis-chat/aegis/replay"
	"github.com/aegis-chat/aegis/wire"
)

// encryptAndSend seals payload as typ under the next send-chain message key
// and writes the resulting frame. Every post-handshake frame — Data, Rekey,
// Heartbeat, Close — goes through here, which is why the sequence number
// (the ratchet's own per-message counter, carried as the 8-byte plaintext
// prefix per §6) is assigned uniformly regardless of frame type.
func (s *Session) encryptAndSend(typ wire.Type, payload []byte) error {
	key, counter, err := s.ratchet.NextSendKey()
	if err != nil {
		return err
	}
	defer key.Release()

	prefixed := wire.EncodeSequence(counter, payload)

	nonce, err := random.Bytes(wire.NonceSize)
	if err != nil {
		return aerr.Wrap(aerr.EntropyFailure, "generate frame nonce", err)
	}
	var nonceArr [wire.NonceSize]byte
	copy(nonceArr[:], nonce)

	h := wire.Header{Version: wire.Version, Type: typ, Timestamp: uint64(time.Now().Unix()), KeyID: s.ratchet.Generation()}

	start := time.Now()
	ciphertext, err := aead.Seal(key.Bytes(), nonce, h.Encode(), prefixed)
	metrics.CryptoOperationDuration.WithLabelValues("seal", "xchacha20poly1305").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("seal").Inc()
		return aerr.Wrap(aerr.ProtocolError, "seal frame", err)
	}
	metrics.CryptoOperations.WithLabelValues("seal", "xchacha20poly1305").Inc()

	frame, err := wire.EncodeFrame(h, nonceArr, ciphertext, s.cfg.MaxFrameSize)
	if err != nil {
		return aerr.Wrap(aerr.ProtocolError, "encode frame", err)
	}

	if err := s.transport.WriteAll(frame); err != nil {
		metrics.MessagesProcessed.WithLabelValues(typ.String(), "failure").Inc()
		return err
	}
	metrics.MessagesProcessed.WithLabelValues(typ.String(), "success").Inc()
	metrics.SessionMessageSize.WithLabelValues("outbound").Observe(float64(len(frame)))
	return nil
}

// inboundOutcome tells the run loop what happened to one raw frame: whether
// it was a fatal protocol/crypto failure, a non-fatal drop (replay, skew),
// or a successfully processed frame possibly requiring follow-up action.
type inboundOutcome int

const (
	outcomeOK inboundOutcome = iota
	outcomeDropped
	outcomeCloseRequested
)

// processInbound parses, authenticates, and dispatches one raw frame body
// (everything after the 4-byte length prefix). Fatal errors (ProtocolError,
// AuthFailed, RatchetDesync, HandshakeFailed) are returned as-is; drop-and-
// continue conditions (Replay, SkewTooLarge) are swallowed here and
// reported only via outcomeDropped, per the Kind.Fatal split in
// internal/aerr.
func (s *Session) processInbound(raw []byte) (inboundOutcome, error) {
	h, nonce, ciphertext, err := wire.DecodeFrameBody(raw)
	if err != nil {
		return outcomeOK, err
	}

	if err := wire.CheckTimestamp(h.Timestamp, time.Now().Unix()); err != nil {
		metrics.NonceValidations.WithLabelValues("skew_exceeded").Inc()
		s.log.Warn("dropping frame outside skew window", logger.String("type", h.Type.String()))
		return outcomeDropped, nil
	}

	if h.Type == wire.Rekey {
		// A Rekey frame is still sealed under the sender's pre-rotation
		// generation, which — by the flush-before-swap ordering rule the
		// sender observes — still matches this side's current generation.
	} else if h.KeyID != s.ratchet.Generation() {
		return outcomeOK, aerr.New(aerr.RatchetDesync, "frame carries unexpected ratchet generation")
	}

	key, _, err := s.ratchet.PeekRecvKey()
	if err != nil {
		return outcomeOK, err
	}

	start := time.Now()
	plaintext, openErr := aead.Open(key.Bytes(), nonce[:], h.Encode(), ciphertext)
	metrics.CryptoOperationDuration.WithLabelValues("open", "xchacha20poly1305").Observe(time.Since(start).Seconds())
	if openErr != nil {
		key.Release()
		return s.handleOpenFailure(h, nonce, ciphertext, openErr)
	}

	if err := s.ratchet.CommitRecv(key); err != nil {
		key.Release()
		return outcomeOK, err
	}
	key.Release()
	metrics.CryptoOperations.WithLabelValues("open", "xchacha20poly1305").Inc()

	seq, rest, err := wire.DecodeSequence(plaintext)
	if err != nil {
		return outcomeOK, err
	}

	if err := s.recvWin.Check(seq); err != nil {
		metrics.ReplayAttacksDetected.Inc()
		metrics.NonceValidations.WithLabelValues("replayed").Inc()
		s.log.Warn("dropping replayed frame", logger.Uint64("sequence", seq))
		return outcomeDropped, nil
	}
	metrics.NonceValidations.WithLabelValues("fresh").Inc()
	metrics.MessagesProcessed.WithLabelValues(h.Type.String(), "success").Inc()
	metrics.SessionMessageSize.WithLabelValues("inbound").Observe(float64(len(raw)))
	metrics.MessageSize.Observe(float64(len(rest)))

	now := time.Now()
	s.peer.RecordActivity(now)

	switch h.Type {
	case wire.Data:
		select {
		case s.inbound <- rest:
		case <-s.closed:
		}
		return outcomeOK, nil

	case wire.Heartbeat:
		s.peer.RecordHeartbeatRecv(now)
		return outcomeOK, nil

	case wire.Close:
		return outcomeCloseRequested, nil

	case wire.Rekey:
		if len(rest) != 32 {
			return outcomeOK, aerr.New(aerr.RatchetDesync, "rekey seed has wrong length")
		}
		if _, err := s.ratchet.RotateWithSeed(rest, s.role); err != nil {
			return outcomeOK, err
		}
		s.recvWin = &replay.Window{}
		metrics.RotationsCompleted.Inc()
		metrics.CurrentGeneration.WithLabelValues(s.id).Set(float64(s.ratchet.Generation()))
		s.log.Info("ratchet rotated by peer rekey", logger.Int("generation", int(s.ratchet.Generation())))
		return outcomeOK, nil

	default:
		return outcomeOK, aerr.New(aerr.ProtocolError, "unexpected frame type after handshake")
	}
}

// handleOpenFailure runs when the in-order receive key fails to authenticate
// a frame. Before treating that as the fatal AuthFailed it looks like, it
// checks the retired-key cache: a byte-for-byte replay of an already-
// processed frame authenticates cleanly under the key that sealed it the
// first time, which is how a true replay is told apart from tampering or
// desync. Only a miss against every retired key is a genuine AuthFailed.
func (s *Session) handleOpenFailure(h wire.Header, nonce [wire.NonceSize]byte, ciphertext []byte, openErr error) (inboundOutcome, error) {
	_, counter, found := s.ratchet.TryRetiredRecv(nonce[:], h.Encode(), ciphertext)
	if !found {
		metrics.CryptoErrors.WithLabelValues("open").Inc()
		metrics.MessagesProcessed.WithLabelValues(h.Type.String(), "failure").Inc()
		return outcomeOK, aerr.Wrap(aerr.AuthFailed, "open frame", openErr)
	}
	metrics.CryptoOperations.WithLabelValues("open", "xchacha20poly1305").Inc()
	metrics.ReplayAttacksDetected.Inc()
	metrics.NonceValidations.WithLabelValues("replayed").Inc()
	s.log.Warn("dropping replayed frame", logger.Uint64("sequence", counter))
	return outcomeDropped, nil
}
