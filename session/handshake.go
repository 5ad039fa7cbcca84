package session

import (
	"time"

	"github.com/aegis-chat/aegis/crypto/aead"
	"github.com/aegis-chat/aegis/crypto/ctutil"
	"github.com/aegis-chat/aegis/crypto/kdf"
	"github.com/aegis-chat/aegis/crypto/kem"
	"github.com/aegis-chat/aegis/crypto/random"
	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/aegis-chat/aegis/internal/logger"
	"github.com/aegis-chat/aegis/internal/metrics"
	"github.com/aegis-chat/aegis/ratchet"
	"github.com/aegis-chat/aegis/transport"
	"github.com/aegis-chat/aegis/wire"
)

// Dial performs the initiator side of the handshake over an already
// connected transport and returns an established Session.
func Dial(t transport.Transport, cfg Config, log logger.Logger) (*Session, error) {
	s := newBase(t, cfg, log)
	metrics.HandshakesInitiated.WithLabelValues("client").Inc()
	start := time.Now()

	if err := s.peer.BeginHandshake(time.Now()); err != nil {
		return nil, aerr.Wrap(aerr.HandshakeFailed, "begin handshake", err)
	}

	pub, sec, err := kem.GenerateKeyPair()
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("keypair_failed").Inc()
		return nil, aerr.Wrap(aerr.HandshakeFailed, "generate kem keypair", err)
	}
	defer sec.Close()

	if err := writeHandshakeFrame(t, wire.HandshakeHello, pub.Bytes, s.cfg.MaxFrameSize); err != nil {
		metrics.HandshakesFailed.WithLabelValues("io_failed").Inc()
		return nil, err
	}
	metrics.HandshakeDuration.WithLabelValues("hello").Observe(time.Since(start).Seconds())

	replyPayload, err := readHandshakeFrame(t, wire.HandshakeReply, s.cfg.MaxFrameSize)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("io_failed").Inc()
		return nil, err
	}
	if len(replyPayload) < kem.PublicKeySize+kem.CiphertextSize {
		metrics.HandshakesFailed.WithLabelValues("transcript_mismatch").Inc()
		return nil, aerr.New(aerr.HandshakeFailed, "handshake reply payload too short")
	}
	ciphertext := replyPayload[kem.PublicKeySize:]

	sharedSecret, err := kem.Decapsulate(sec, ciphertext)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("decapsulate_failed").Inc()
		return nil, aerr.Wrap(aerr.HandshakeFailed, "decapsulate", err)
	}
	defer random.Fill(sharedSecret) //nolint:errcheck // best-effort scrub of the stack copy

	transcript, err := kdf.TranscriptHash(pub.Bytes, replyPayload)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("ratchet_init_failed").Inc()
		return nil, aerr.Wrap(aerr.HandshakeFailed, "hash handshake transcript", err)
	}

	s.role = ratchet.Initiator
	r, err := ratchet.New(sharedSecret, transcript, ratchet.Initiator, s.cfg.MaxSkipped)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("ratchet_init_failed").Inc()
		return nil, err
	}
	s.ratchet = r

	if err := s.peer.Establish(time.Now()); err != nil {
		metrics.HandshakesFailed.WithLabelValues("transcript_mismatch").Inc()
		return nil, aerr.Wrap(aerr.HandshakeFailed, "establish", err)
	}

	if err := s.sendConfirm(); err != nil {
		metrics.HandshakesFailed.WithLabelValues("auth_failed").Inc()
		return nil, err
	}

	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	metrics.HandshakeDuration.WithLabelValues("confirm").Observe(time.Since(start).Seconds())
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.CurrentGeneration.WithLabelValues(s.id).Set(0)
	return s, nil
}

// Accept performs the responder side of the handshake over an accepted
// transport and returns an established Session.
func Accept(t transport.Transport, cfg Config, log logger.Logger) (*Session, error) {
	s := newBase(t, cfg, log)
	metrics.HandshakesInitiated.WithLabelValues("server").Inc()
	start := time.Now()

	if err := s.peer.BeginHandshake(time.Now()); err != nil {
		return nil, aerr.Wrap(aerr.HandshakeFailed, "begin handshake", err)
	}

	helloPayload, err := readHandshakeFrame(t, wire.HandshakeHello, s.cfg.MaxFrameSize)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("io_failed").Inc()
		return nil, err
	}
	peerPub, err := kem.ParsePublicKey(helloPayload)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("transcript_mismatch").Inc()
		return nil, aerr.Wrap(aerr.HandshakeFailed, "parse peer public key", err)
	}

	// pk_resp is sent for wire-format symmetry and is bound into the
	// transcript hash with the rest of the reply, but this handshake's
	// shared secret depends only on the
	// encapsulation to peerPub; the responder's own secret key is never
	// needed again once the reply is built.
	ownPub, ownSec, err := kem.GenerateKeyPair()
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("keypair_failed").Inc()
		return nil, aerr.Wrap(aerr.HandshakeFailed, "generate kem keypair", err)
	}
	ownSec.Close()

	ciphertext, sharedSecret, err := kem.Encapsulate(peerPub)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("encapsulate_failed").Inc()
		return nil, aerr.Wrap(aerr.HandshakeFailed, "encapsulate", err)
	}
	defer random.Fill(sharedSecret) //nolint:errcheck

	replyPayload := make([]byte, 0, len(ownPub.Bytes)+len(ciphertext))
	replyPayload = append(replyPayload, ownPub.Bytes...)
	replyPayload = append(replyPayload, ciphertext...)
	if err := writeHandshakeFrame(t, wire.HandshakeReply, replyPayload, s.cfg.MaxFrameSize); err != nil {
		metrics.HandshakesFailed.WithLabelValues("io_failed").Inc()
		return nil, err
	}
	metrics.HandshakeDuration.WithLabelValues("reply").Observe(time.Since(start).Seconds())

	transcript, err := kdf.TranscriptHash(helloPayload, replyPayload)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("ratchet_init_failed").Inc()
		return nil, aerr.Wrap(aerr.HandshakeFailed, "hash handshake transcript", err)
	}

	s.role = ratchet.Responder
	r, err := ratchet.New(sharedSecret, transcript, ratchet.Responder, s.cfg.MaxSkipped)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("ratchet_init_failed").Inc()
		return nil, err
	}
	s.ratchet = r

	if err := s.peer.Establish(time.Now()); err != nil {
		metrics.HandshakesFailed.WithLabelValues("transcript_mismatch").Inc()
		return nil, aerr.Wrap(aerr.HandshakeFailed, "establish", err)
	}

	if err := s.recvConfirm(); err != nil {
		metrics.HandshakesFailed.WithLabelValues("auth_failed").Inc()
		return nil, err
	}

	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	metrics.HandshakeDuration.WithLabelValues("confirm").Observe(time.Since(start).Seconds())
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.CurrentGeneration.WithLabelValues(s.id).Set(0)
	return s, nil
}

// writeHandshakeFrame sends an unencrypted Hello/Reply frame: a zero nonce
// and the payload in place of ciphertext, per §6's unencrypted-frame rule.
func writeHandshakeFrame(t transport.Transport, typ wire.Type, payload []byte, maxFrameSize int) error {
	h := wire.Header{Version: wire.Version, Type: typ, Timestamp: uint64(time.Now().Unix()), KeyID: 0}
	var nonce [wire.NonceSize]byte
	frame, err := wire.EncodeFrame(h, nonce, payload, maxFrameSize)
	if err != nil {
		return aerr.Wrap(aerr.ProtocolError, "encode handshake frame", err)
	}
	if err := t.WriteAll(frame); err != nil {
		return aerr.Wrap(aerr.IoError, "write handshake frame", err)
	}
	return nil
}

// readHandshakeFrame reads one frame and validates it is the expected
// unencrypted handshake type, returning its payload.
func readHandshakeFrame(t transport.Transport, want wire.Type, maxFrameSize int) ([]byte, error) {
	h, _, payload, err := readFrame(t, maxFrameSize)
	if err != nil {
		return nil, err
	}
	if h.Type != want {
		return nil, aerr.New(aerr.HandshakeFailed, "unexpected handshake message type")
	}
	return payload, nil
}

// sendConfirm seals the fixed confirm tag under the first send-chain
// message key and writes it as the session's first encrypted frame.
func (s *Session) sendConfirm() error {
	key, counter, err := s.ratchet.NextSendKey()
	if err != nil {
		return err
	}
	defer key.Release()
	_ = counter // confirm carries no sequence prefix, per §6's message type table

	nonce, err := random.Bytes(wire.NonceSize)
	if err != nil {
		return aerr.Wrap(aerr.EntropyFailure, "generate confirm nonce", err)
	}
	var nonceArr [wire.NonceSize]byte
	copy(nonceArr[:], nonce)

	h := wire.Header{Version: wire.Version, Type: wire.HandshakeConfirm, Timestamp: uint64(time.Now().Unix()), KeyID: s.ratchet.Generation()}
	ciphertext, err := aead.Seal(key.Bytes(), nonce, h.Encode(), wire.ConfirmTag)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("seal").Inc()
		return aerr.Wrap(aerr.HandshakeFailed, "seal confirm", err)
	}
	metrics.CryptoOperations.WithLabelValues("seal", "xchacha20poly1305").Inc()

	frame, err := wire.EncodeFrame(h, nonceArr, ciphertext, s.cfg.MaxFrameSize)
	if err != nil {
		return aerr.Wrap(aerr.ProtocolError, "encode confirm frame", err)
	}
	if err := s.transport.WriteAll(frame); err != nil {
		return aerr.Wrap(aerr.IoError, "write confirm frame", err)
	}
	return nil
}

// recvConfirm reads and verifies the initiator's confirm frame.
func (s *Session) recvConfirm() error {
	h, nonce, ciphertext, err := readFrame(s.transport, s.cfg.MaxFrameSize)
	if err != nil {
		return err
	}
	if h.Type != wire.HandshakeConfirm {
		return aerr.New(aerr.HandshakeFailed, "expected handshake confirm")
	}
	if h.KeyID != s.ratchet.Generation() {
		return aerr.New(aerr.RatchetDesync, "confirm frame carries unexpected generation")
	}

	key, err := s.ratchet.NextRecvKey(s.ratchet.RecvCounter())
	if err != nil {
		return err
	}
	defer key.Release()

	plaintext, err := aead.Open(key.Bytes(), nonce[:], h.Encode(), ciphertext)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("open").Inc()
		return aerr.Wrap(aerr.AuthFailed, "open confirm", err)
	}
	metrics.CryptoOperations.WithLabelValues("open", "xchacha20poly1305").Inc()

	if !confirmTagEqual(plaintext) {
		return aerr.New(aerr.HandshakeFailed, "confirm tag mismatch")
	}
	return nil
}

func confirmTagEqual(got []byte) bool {
	return ctutil.Eq(got, wire.ConfirmTag)
}

// readFrame reads exactly one length-prefixed frame off t.
func readFrame(t transport.Transport, maxFrameSize int) (wire.Header, [wire.NonceSize]byte, []byte, error) {
	body, err := readRawBody(t, maxFrameSize)
	if err != nil {
		return wire.Header{}, [wire.NonceSize]byte{}, nil, err
	}
	return wire.DecodeFrameBody(body)
}
