// Package random exposes the single source of cryptographically secure
// randomness used throughout the Aegis core: nonce sampling, rotation seeds,
// and secret buffers draw from here instead of calling crypto/rand directly,
// so there is one place that turns a CSPRNG failure into a fatal,
// process-wide error. KEM keypair generation is the exception: circl reads
// crypto/rand itself (see crypto/kem).
package random

import (
	"crypto/rand"

	"github.com/aegis-chat/aegis/internal/aerr"
)

// Fill writes len(buf) uniformly random bytes into buf, drawn from the OS
// CSPRNG (crypto/rand, which wraps getrandom/arc4random/CryptGenRandom
// depending on platform). There is no user-seedable fallback: if the OS
// cannot supply entropy, Fill returns an EntropyFailure error and callers
// MUST treat it as fatal and unrecoverable.
func Fill(buf []byte) error {
	if _, err := rand.Read(buf); err != nil {
		return aerr.Wrap(aerr.EntropyFailure, "failed to read from OS CSPRNG", err)
	}
	return nil
}

// Bytes allocates and fills an n-byte buffer. A CSPRNG failure is returned
// as an error rather than a panic or os.Exit — callers decide how fatal EntropyFailure is
// handled at their boundary (typically: abort the session, or abort the
// process if no session context exists yet).
func Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := Fill(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// MustBytes is Bytes but panics on EntropyFailure. It is intended only for
// call sites with no error-return path available (e.g. package-level var
// initialization in tests); production code paths in the session and
// handshake packages must use Bytes and propagate the error.
func MustBytes(n int) []byte {
	buf, err := Bytes(n)
	if err != nil {
		panic(err)
	}
	return buf
}
