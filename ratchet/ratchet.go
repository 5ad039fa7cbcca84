// Package ratchet implements Aegis's Double-Ratchet-style key schedule: one
// root key, a per-direction send/recv chain, per-message keys, and
// time-driven rotation instead of the per-message Diffie-Hellman ratchet of
// the classic Signal construction (there is no per-message DH step here —
// rotation is triggered by a timer, not by every send, per spec).
//
// State shape (RootKey/ChainKey/MessageKey naming, a bounded skipped-key
// cache, and an explicit wipe-on-release discipline) is grounded on
// ericlagergren-dr/dr.go's State/Session types and its memory Store, adapted
// from a per-message DH ratchet to Aegis's simpler time-based one. The
// retired-key cache (PeekRecvKey/CommitRecv/TryRetiredRecv) extends that
// same counter-indexed lookup idea to the in-order path, so a session can
// distinguish a byte-for-byte replay from a tampered or desynced frame
// without ever mutating chain state on an unauthenticated guess.
package ratchet

import (
	"github.com/aegis-chat/aegis/crypto/aead"
	"github.com/aegis-chat/aegis/crypto/kdf"
	"github.com/aegis-chat/aegis/crypto/random"
	"github.com/aegis-chat/aegis/crypto/vault"
	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/aegis-chat/aegis/replay"
)

// DefaultMaxSkipped is the skip-ahead bound New falls back to when the
// caller passes a non-positive maxSkipped. It matches config's own default
// so a session built without an explicit limit behaves identically to one
// loaded from config.yaml's zero value.
const DefaultMaxSkipped = 128

// skippedEntry is one cached out-of-order message key, indexed by the
// counter it was derived for. A linear-scan slice is used instead of a map,
// per the design notes: it keeps zeroization precise and avoids a hashed
// structure's timing variance when an attacker can influence which counters
// are probed.
type skippedEntry struct {
	used    bool
	counter uint64
	key     *vault.Buffer
}

// retiredEntry is a clone of a recv key already committed and consumed. It
// exists only so that a byte-for-byte replay of that frame can be
// recognized by successfully re-authenticating against the key it was
// actually sealed under, instead of failing AEAD against whatever key the
// chain has since advanced to.
type retiredEntry struct {
	used    bool
	counter uint64
	key     *vault.Buffer
}

// State is the full per-session ratchet state. A State is exclusively owned
// by one Session (C11); nothing outside this package and its owning session
// should mutate it directly.
type State struct {
	root *vault.Buffer

	sendChain *vault.Buffer
	recvChain *vault.Buffer

	sendCounter uint64
	recvCounter uint64

	generation uint16

	maxSkipped int
	skipped    []skippedEntry

	// retired is sized to replay.WindowSize: a duplicate older than the
	// replay window's own trailing bitmap is already rejected as Replay
	// before a key is ever retired for it, so caching further back than
	// that window would never be probed.
	retired    []retiredEntry
	retiredPos int
}

// Role distinguishes which half of DeriveChains a party takes.
type Role int

const (
	// Initiator takes the first 32 bytes of DeriveChains as its send chain.
	Initiator Role = iota
	// Responder takes the first 32 bytes of DeriveChains as its recv chain.
	Responder
)

// New constructs initial ratchet state from a KEM shared secret, the
// BLAKE3 transcript hash of the handshake bytes exchanged (binding the root
// key to that specific handshake, per kdf.DeriveRoot), and a role. The
// shared secret is consumed (the caller's buffer is not retained) but not
// zeroized here — callers are expected to zeroize it themselves immediately
// after this call returns, since only the caller's handshake code knows
// whether the secret is still needed for anything else. maxSkipped bounds
// the skip-ahead cache; a non-positive value falls back to DefaultMaxSkipped.
func New(sharedSecret, transcript []byte, role Role, maxSkipped int) (*State, error) {
	if maxSkipped <= 0 {
		maxSkipped = DefaultMaxSkipped
	}

	rootBytes, err := kdf.DeriveRoot(sharedSecret, transcript)
	if err != nil {
		return nil, aerr.Wrap(aerr.HandshakeFailed, "derive root key", err)
	}
	first, second, err := kdf.DeriveChains(rootBytes)
	if err != nil {
		return nil, aerr.Wrap(aerr.HandshakeFailed, "derive chain keys", err)
	}

	s := &State{
		root:       vault.FromBytes(rootBytes),
		maxSkipped: maxSkipped,
		skipped:    make([]skippedEntry, maxSkipped),
		retired:    make([]retiredEntry, replay.WindowSize),
	}
	switch role {
	case Initiator:
		s.sendChain = vault.FromBytes(first)
		s.recvChain = vault.FromBytes(second)
	case Responder:
		s.recvChain = vault.FromBytes(first)
		s.sendChain = vault.FromBytes(second)
	}
	return s, nil
}

// Generation returns the current rotation generation, carried on the wire
// as the header's key_id field.
func (s *State) Generation() uint16 { return s.generation }

// RecvCounter returns the next counter NextRecvKey expects on the in-order
// path — the session uses this to know which counter an inbound frame
// should be decrypted against before it has parsed any plaintext.
func (s *State) RecvCounter() uint64 { return s.recvCounter }

// NextSendKey derives the next outbound message key and advances the send
// chain. Returns the pre-advance message key and the counter it is bound
// to; the caller must zeroize the returned key after use.
func (s *State) NextSendKey() (key *vault.Buffer, counter uint64, err error) {
	mk, err := kdf.MessageKey(s.sendChain.Bytes())
	if err != nil {
		return nil, 0, aerr.Wrap(aerr.RatchetDesync, "derive send message key", err)
	}
	next, err := kdf.AdvanceChain(s.sendChain.Bytes())
	if err != nil {
		return nil, 0, aerr.Wrap(aerr.RatchetDesync, "advance send chain", err)
	}
	s.sendChain.Release()
	s.sendChain = vault.FromBytes(next)

	counter = s.sendCounter
	s.sendCounter++
	return vault.FromBytes(mk), counter, nil
}

// PeekRecvKey derives the message key for the expected next recv counter
// (RecvCounter) without advancing the chain or consuming the counter.
// Deriving a candidate key is cheap and side-effect-free; committing to
// having consumed this chain position is not, so callers must verify the
// key actually authenticates a frame (via CommitRecv) before relying on the
// chain having moved forward.
func (s *State) PeekRecvKey() (key *vault.Buffer, counter uint64, err error) {
	mk, err := kdf.MessageKey(s.recvChain.Bytes())
	if err != nil {
		return nil, 0, aerr.Wrap(aerr.RatchetDesync, "derive recv message key", err)
	}
	return vault.FromBytes(mk), s.recvCounter, nil
}

// CommitRecv advances the recv chain past the position key was peeked for
// and retires a clone of key into the replay-detection cache, so a later
// byte-for-byte replay of this frame can be recognized instead of failing
// AEAD against whatever key the chain advances to next. The caller retains
// ownership of key (and must still release it).
func (s *State) CommitRecv(key *vault.Buffer) error {
	next, err := kdf.AdvanceChain(s.recvChain.Bytes())
	if err != nil {
		return aerr.Wrap(aerr.RatchetDesync, "advance recv chain", err)
	}
	s.recvChain.Release()
	s.recvChain = vault.FromBytes(next)
	s.retireKey(s.recvCounter, key.Clone())
	s.recvCounter++
	return nil
}

func (s *State) retireKey(counter uint64, key *vault.Buffer) {
	slot := s.retiredPos % len(s.retired)
	if s.retired[slot].used {
		s.retired[slot].key.Release()
	}
	s.retired[slot] = retiredEntry{used: true, counter: counter, key: key}
	s.retiredPos++
}

// TryRetiredRecv attempts to authenticate ciphertext against every key in
// the retired-key cache. A retired key only ever sealed the one frame it
// was derived for, so a successful open here conclusively identifies
// ciphertext as a duplicate of an already-accepted frame rather than
// tampered or desynced data. Returns the recovered plaintext and the
// counter the key was originally retired under.
func (s *State) TryRetiredRecv(nonce, aad, ciphertext []byte) (plaintext []byte, counter uint64, ok bool) {
	for i := range s.retired {
		if !s.retired[i].used {
			continue
		}
		pt, err := aead.Open(s.retired[i].key.Bytes(), nonce, aad, ciphertext)
		if err == nil {
			return pt, s.retired[i].counter, true
		}
	}
	return nil, 0, false
}

// NextRecvKey obtains the message key for an inbound frame carrying the
// given counter. It handles three cases: the expected next counter (peek
// then commit in one step), a counter ahead of expectation within
// maxSkipped (derive and cache the intermediate keys), and a counter behind
// the current position (look up — and consume — the skipped cache). A gap
// beyond maxSkipped is RatchetDesync.
func (s *State) NextRecvKey(counter uint64) (*vault.Buffer, error) {
	switch {
	case counter == s.recvCounter:
		key, _, err := s.PeekRecvKey()
		if err != nil {
			return nil, err
		}
		if err := s.CommitRecv(key); err != nil {
			key.Release()
			return nil, err
		}
		return key, nil

	case counter > s.recvCounter:
		gap := counter - s.recvCounter
		if gap > uint64(s.maxSkipped) {
			return nil, aerr.New(aerr.RatchetDesync, "recv gap exceeds MAX_SKIPPED")
		}
		var want *vault.Buffer
		for s.recvCounter <= counter {
			mk, err := kdf.MessageKey(s.recvChain.Bytes())
			if err != nil {
				return nil, aerr.Wrap(aerr.RatchetDesync, "derive skipped message key", err)
			}
			next, err := kdf.AdvanceChain(s.recvChain.Bytes())
			if err != nil {
				return nil, aerr.Wrap(aerr.RatchetDesync, "advance recv chain", err)
			}
			s.recvChain.Release()
			s.recvChain = vault.FromBytes(next)

			if s.recvCounter == counter {
				want = vault.FromBytes(mk)
			} else {
				s.cacheSkipped(s.recvCounter, vault.FromBytes(mk))
			}
			s.recvCounter++
		}
		if want == nil {
			return nil, aerr.New(aerr.RatchetDesync, "failed to produce requested recv key")
		}
		return want, nil

	default: // counter < s.recvCounter: must be in the skipped cache
		if entry, ok := s.takeSkipped(counter); ok {
			return entry, nil
		}
		return nil, aerr.New(aerr.RatchetDesync, "recv counter not found in skipped-key cache")
	}
}

func (s *State) cacheSkipped(counter uint64, key *vault.Buffer) {
	for i := range s.skipped {
		if !s.skipped[i].used {
			s.skipped[i] = skippedEntry{used: true, counter: counter, key: key}
			return
		}
	}
	// Cache full: evict the oldest-looking slot (index 0 in insertion order
	// is not tracked explicitly, so conservatively evict slot 0 — in
	// practice gap <= maxSkipped keeps the cache from overflowing between
	// calls that cap gap at maxSkipped).
	s.skipped[0].key.Release()
	s.skipped[0] = skippedEntry{used: true, counter: counter, key: key}
}

func (s *State) takeSkipped(counter uint64) (*vault.Buffer, bool) {
	for i := range s.skipped {
		if s.skipped[i].used && s.skipped[i].counter == counter {
			key := s.skipped[i].key
			s.skipped[i] = skippedEntry{}
			return key, true
		}
	}
	return nil, false
}

// Rotate derives a new root key from a fresh random seed and re-derives both
// chains, resetting both counters to zero and bumping the generation. It
// returns the seed so the caller can transmit it to the peer as the
// plaintext of a Rekey message. The chains are already swapped when Rotate
// returns, so a caller that seals the Rekey frame under the OLD chain (as
// session.rotate does) draws the seed itself, sends the frame, and then
// calls RotateWithSeed.
func (s *State) Rotate(role Role) (seed []byte, err error) {
	seed, err = random.Bytes(kdf.KeySize)
	if err != nil {
		return nil, err
	}
	return s.RotateWithSeed(seed, role)
}

// RotateWithSeed performs the peer-observed side of a rotation: given a seed
// received (decrypted) from the peer's Rekey message, deterministically
// derive the same new root and chains the initiator of the rotation did.
func (s *State) RotateWithSeed(seed []byte, role Role) ([]byte, error) {
	newRoot, err := kdf.RekeyRoot(s.root.Bytes(), seed)
	if err != nil {
		return nil, aerr.Wrap(aerr.RatchetDesync, "rekey root", err)
	}
	first, second, err := kdf.DeriveChains(newRoot)
	if err != nil {
		return nil, aerr.Wrap(aerr.RatchetDesync, "derive rotated chains", err)
	}

	s.root.Release()
	s.root = vault.FromBytes(newRoot)

	s.sendChain.Release()
	s.recvChain.Release()
	switch role {
	case Initiator:
		s.sendChain = vault.FromBytes(first)
		s.recvChain = vault.FromBytes(second)
	case Responder:
		s.recvChain = vault.FromBytes(first)
		s.sendChain = vault.FromBytes(second)
	}

	s.sendCounter = 0
	s.recvCounter = 0
	s.generation++

	for i := range s.skipped {
		if s.skipped[i].used {
			s.skipped[i].key.Release()
			s.skipped[i] = skippedEntry{}
		}
	}
	for i := range s.retired {
		if s.retired[i].used {
			s.retired[i].key.Release()
			s.retired[i] = retiredEntry{}
		}
	}
	s.retiredPos = 0

	return seed, nil
}

// Close zeroizes every live buffer: the root key, both chains, and any
// cached skipped-key or retired-key entries. Safe to call multiple times.
func (s *State) Close() {
	if s.root != nil {
		s.root.Release()
	}
	if s.sendChain != nil {
		s.sendChain.Release()
	}
	if s.recvChain != nil {
		s.recvChain.Release()
	}
	for i := range s.skipped {
		if s.skipped[i].used {
			s.skipped[i].key.Release()
			s.skipped[i] = skippedEntry{}
		}
	}
	for i := range s.retired {
		if s.retired[i].used {
			s.retired[i].key.Release()
			s.retired[i] = retiredEntry{}
		}
	}
}
