// Package kdf implements the two key-derivation primitives the ratchet
// is built on: HKDF-SHA256 for the coarse-grained derivations (root key from
// shared secret, chain keys from root, rotated root from a new seed) and a
// BLAKE3 keyed hash for the fast per-message chain advance. The HKDF usage
// is grounded on the `scheduler.Derive` pattern in the Qsafe reference
// material (`other_examples/.../scheduler.go`, hkdf.New + io.ReadFull); the
// BLAKE3 usage is grounded on the same file's session-id/confirm hashing, and
// TranscriptHash's unkeyed blake3.New() is grounded on that file's own
// transcript-hashing helper.
//
// Every label below is a frozen part of the wire contract: changing any
// salt or info string changes what two conforming implementations derive
// from identical inputs, silently breaking interoperability. Do not edit
// these constants; introduce a new label and a version bump instead.
package kdf

import (
	"crypto/sha256"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

const (
	saltRoot  = "aegis-root-v1"
	infoRoot  = "root"
	infoChain = "chains"
	infoRotat = "rotate"

	blakeAdvance = "advance"
	blakeMessage = "msg"
)

// KeySize is the length in bytes of every root key, chain key, and message
// key in this system.
const KeySize = 32

func hkdfExpand(salt, ikm, info []byte, l int) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, l)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveRoot computes the initial ratchet root key from the KEM shared
// secret and the handshake transcript hash: HKDF(salt="aegis-root-v1",
// ikm=shared_secret, info="root"||transcript, L=32). Mixing the transcript
// into info binds the root key to the exact handshake bytes exchanged, so
// a transcript substitution (an attacker splicing in a different Hello or
// Reply than the one actually sent) cannot produce a matching root key even
// if it somehow produced the same KEM shared secret. transcript may be nil
// for callers that have no transcript to bind (e.g. tests constructing a
// ratchet pair directly), in which case info degenerates to infoRoot alone.
func DeriveRoot(sharedSecret, transcript []byte) ([]byte, error) {
	info := make([]byte, 0, len(infoRoot)+len(transcript))
	info = append(info, infoRoot...)
	info = append(info, transcript...)
	return hkdfExpand([]byte(saltRoot), sharedSecret, info, KeySize)
}

// TranscriptHash computes a BLAKE3 hash over the concatenation of parts, in
// the order given. Both handshake parties call this with the same two
// byte slices — the Hello payload and the Reply payload, in send order —
// so they derive the same transcript-binding value for DeriveRoot.
func TranscriptHash(parts ...[]byte) ([]byte, error) {
	h := blake3.New()
	for _, p := range parts {
		if _, err := h.Write(p); err != nil {
			return nil, err
		}
	}
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(h.Digest(), out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveChains splits a root key into the two per-direction chain keys:
// HKDF(salt=root, ikm=empty, info="chains", L=64) -> (first32, second32).
// Role-dependent assignment (which half is send vs recv) is the caller's
// responsibility — the initiator takes the first half as its send chain,
// the responder takes the first half as its recv chain.
func DeriveChains(root []byte) (first, second []byte, err error) {
	okm, err := hkdfExpand(root, nil, []byte(infoChain), 2*KeySize)
	if err != nil {
		return nil, nil, err
	}
	return okm[:KeySize], okm[KeySize:], nil
}

// RekeyRoot computes a new root key from the current root and a fresh
// rotation seed: HKDF(salt=root, ikm=new_chain_seed, info="rotate", L=32).
func RekeyRoot(root, seed []byte) ([]byte, error) {
	return hkdfExpand(root, seed, []byte(infoRotat), KeySize)
}

func blakeKeyed(key []byte, label string) ([]byte, error) {
	h, err := blake3.NewKeyed(key)
	if err != nil {
		return nil, err
	}
	if _, err := h.Write([]byte(label)); err != nil {
		return nil, err
	}
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(h.Digest(), out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdvanceChain derives the next chain key from the current one:
// BLAKE3_keyed(chain, "advance").
func AdvanceChain(chain []byte) ([]byte, error) {
	return blakeKeyed(chain, blakeAdvance)
}

// MessageKey derives a single-use message key from a chain key without
// mutating it: BLAKE3_keyed(chain, "msg"). Callers advance the chain
// separately via AdvanceChain.
func MessageKey(chain []byte) ([]byte, error) {
	return blakeKeyed(chain, blakeMessage)
}
