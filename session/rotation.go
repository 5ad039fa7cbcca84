package session

import (
	"github.com/aegis-chat/aegis/crypto/kdf"
	"github.com/aegis-chat/aegis/crypto/random"
	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/aegis-chat/aegis/internal/logger"
	"github.com/aegis-chat/aegis/internal/metrics"
	"github.com/aegis-chat/aegis/replay"
	"github.com/aegis-chat/aegis/wire"
)

// rotate performs a self-initiated ratchet rotation. Per the ordering rule
// in the design notes — flush the outbound queue through the old chain
// before swapping it out — the run loop must drain s.outbound synchronously
// before calling rotate, since rotate itself only touches the send side
// once: sealing and transmitting the Rekey frame under the still-active
// generation, then swapping.
func (s *Session) rotate() error {
	seed, err := random.Bytes(kdf.KeySize)
	if err != nil {
		return aerr.Wrap(aerr.EntropyFailure, "generate rotation seed", err)
	}

	if err := s.encryptAndSend(wire.Rekey, seed); err != nil {
		return err
	}

	if _, err := s.ratchet.RotateWithSeed(seed, s.role); err != nil {
		return err
	}
	s.recvWin = &replay.Window{}

	metrics.RotationsCompleted.Inc()
	metrics.CurrentGeneration.WithLabelValues(s.id).Set(float64(s.ratchet.Generation()))
	s.log.Info("ratchet rotated", logger.Int("generation", int(s.ratchet.Generation())))
	return nil
}
