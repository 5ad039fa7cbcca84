// Package kem wraps Kyber-1024 (ML-KEM, NIST security level 5) behind a
// tiny keypair/encapsulate/decapsulate surface. It uses
// github.com/cloudflare/circl/kem/kyber/kyber1024, a dependency the teacher
// repository already carries for its HPKE-based agent handshake
// (crypto/keys/x25519.go imports github.com/cloudflare/circl/hpke, which is
// built on the same circl/kem scheme abstraction this package uses
// directly).
package kem

import (
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber1024"

	"github.com/aegis-chat/aegis/internal/aerr"
)

var scheme = kyber1024.Scheme()

// Fixed byte lengths, as standardized for Kyber-1024.
var (
	PublicKeySize  = scheme.PublicKeySize()
	SecretKeySize  = scheme.PrivateKeySize()
	CiphertextSize = scheme.CiphertextSize()
	SharedKeySize  = scheme.SharedKeySize() // 32 bytes
)

// PublicKey carries both the parsed circl key (for Encapsulate) and its
// marshaled bytes (for putting straight on the wire without re-marshaling).
type PublicKey struct {
	inner kem.PublicKey
	Bytes []byte
}

// SecretKey holds the parsed private key. Its bytes are never serialized to
// the wire; the session handshake releases the initiator's key when Dial
// returns, and the responder's own ephemeral key right after it is
// generated, since the responder never decapsulates with it.
type SecretKey struct {
	inner kem.PrivateKey
}

// Close drops the secret key. circl's key types do not expose their
// internal representation for zeroization, so this is a best-effort
// reference release rather than a guaranteed wipe; callers still must not
// retain a SecretKey any longer than the handshake step that needs it.
func (sk *SecretKey) Close() {
	sk.inner = nil
}

// GenerateKeyPair produces a fresh Kyber-1024 keypair. circl draws its
// internal randomness from crypto/rand, the same OS CSPRNG crypto/random
// (C1) wraps, so there is no separate entropy source to reconcile here.
func GenerateKeyPair() (*PublicKey, *SecretKey, error) {
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, aerr.Wrap(aerr.HandshakeFailed, "generate kyber1024 keypair", err)
	}
	raw, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, aerr.Wrap(aerr.HandshakeFailed, "marshal kyber1024 public key", err)
	}
	return &PublicKey{inner: pk, Bytes: raw}, &SecretKey{inner: sk}, nil
}

// ParsePublicKey unmarshals a peer's public key bytes received over the
// wire (the HandshakeHello/HandshakeReply payload).
func ParsePublicKey(raw []byte) (*PublicKey, error) {
	if len(raw) != PublicKeySize {
		return nil, aerr.New(aerr.ProtocolError, "kyber1024 public key has wrong length")
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(raw)
	if err != nil {
		return nil, aerr.Wrap(aerr.ProtocolError, "unmarshal kyber1024 public key", err)
	}
	return &PublicKey{inner: pk, Bytes: append([]byte(nil), raw...)}, nil
}

// Encapsulate generates a ciphertext and a shared secret bound to pk.
func Encapsulate(pk *PublicKey) (ciphertext, sharedSecret []byte, err error) {
	ct, ss, err := scheme.Encapsulate(pk.inner)
	if err != nil {
		return nil, nil, aerr.Wrap(aerr.HandshakeFailed, "kyber1024 encapsulate", err)
	}
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from ciphertext using sk. ML-KEM's
// implicit-rejection branch is handled inside circl itself — a malformed or
// tampered ciphertext still yields a (useless) shared secret rather than an
// error in most cases, by design of the primitive; Aegis only rejects a
// ciphertext here when its length is wrong, and otherwise trusts the
// decapsulated output to the handshake confirmation step to catch mismatch.
func Decapsulate(sk *SecretKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != CiphertextSize {
		return nil, aerr.New(aerr.HandshakeFailed, "kyber1024 ciphertext has wrong length")
	}
	ss, err := scheme.Decapsulate(sk.inner, ciphertext)
	if err != nil {
		return nil, aerr.Wrap(aerr.HandshakeFailed, "kyber1024 decapsulate", err)
	}
	return ss, nil
}
