// Package aead wraps XChaCha20-Poly1305 (256-bit key, 192-bit nonce, 128-bit
// tag) behind the seal/open shape the teacher's SecureSession used for its
// AES-GCM AEAD (session/session.go, Encrypt/Decrypt: nonce prefixed to
// ciphertext||tag). The construction choice moves from AES-GCM to
// XChaCha20-Poly1305 because the extended 192-bit nonce lets every message
// sample a fresh random nonce with negligible collision risk, removing the
// need for a counter-nonce scheme across ratchet rotations.
package aead

import (
	"github.com/aegis-chat/aegis/internal/aerr"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize and NonceSize match chacha20poly1305.NewX's requirements: a
// 32-byte key and a 24-byte (192-bit) nonce.
const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSizeX
	TagSize   = chacha20poly1305.Overhead
)

// Seal encrypts plaintext under key and nonce, authenticating aad, and
// returns ciphertext||tag. key must be KeySize bytes and nonce must be
// NonceSize bytes.
func Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, aerr.Wrap(aerr.ProtocolError, "construct xchacha20poly1305 aead", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, aerr.New(aerr.ProtocolError, "nonce has wrong length for xchacha20poly1305")
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext (which includes the trailing
// tag) under key and nonce, with aad as associated data. A failed tag check
// — the library's own constant-time comparison — surfaces as AuthFailed.
func Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, aerr.Wrap(aerr.ProtocolError, "construct xchacha20poly1305 aead", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, aerr.New(aerr.ProtocolError, "nonce has wrong length for xchacha20poly1305")
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, aerr.Wrap(aerr.AuthFailed, "aead tag verification failed", err)
	}
	return pt, nil
}
