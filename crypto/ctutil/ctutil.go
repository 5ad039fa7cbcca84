// Package ctutil collects the constant-time primitives of the core. The
// session's handshake-confirm comparison goes through Eq; AEAD tag checks
// happen inside the AEAD library, and the replay window tests its bitmap
// directly without this package. It builds on crypto/subtle, the same
// package the teacher repository reaches for at every constant-time compare
// site (crypto/keys/x25519.go, pkg/agent/hpke/common.go).
package ctutil

import (
	"crypto/subtle"
	"time"
)

// Eq runs in time dependent only on the common length of a and b — it never
// branches on their contents, only (implicitly, via a length check before
// the constant-time core) on their lengths. A mismatched length is reported
// immediately as unequal without touching subtle, which is safe because
// length is not itself a secret in any Aegis comparison (header sizes, tag
// sizes, and confirm-tag length are all fixed constants known to an
// attacker).
func Eq(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Select returns a if cond is true and b otherwise, without a data-dependent
// branch. a and b must have equal length; Select panics otherwise, since a
// length mismatch indicates a caller bug rather than secret-dependent data.
func Select(cond bool, a, b []byte) []byte {
	if len(a) != len(b) {
		panic("ctutil: Select operands must have equal length")
	}
	c := 0
	if cond {
		c = 1
	}
	out := make([]byte, len(a))
	for i := range out {
		out[i] = byte(subtle.ConstantTimeSelect(c, int(a[i]), int(b[i])))
	}
	return out
}

// PadBlock appends deterministic padding to plaintext so the result is a
// multiple of block bytes. The padding scheme is PKCS#7-style: every pad
// byte holds the pad length, which makes unpadding unambiguous and
// unpadding itself implementable as a constant-time scan (UnpadBlock below)
// rather than branching on the first mismatching byte.
func PadBlock(plaintext []byte, block int) []byte {
	if block <= 0 || block > 255 {
		panic("ctutil: PadBlock block size must be in 1..255")
	}
	padLen := block - (len(plaintext) % block)
	out := make([]byte, len(plaintext)+padLen)
	copy(out, plaintext)
	for i := len(plaintext); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// UnpadBlock reverses PadBlock. It checks every pad byte without stopping at
// the first mismatching one (the number of bytes scanned is the pad length
// read from the last byte) and reports false if the padding is malformed.
func UnpadBlock(padded []byte, block int) ([]byte, bool) {
	if len(padded) == 0 || len(padded)%block != 0 {
		return nil, false
	}
	padLen := int(padded[len(padded)-1])
	if padLen == 0 || padLen > block || padLen > len(padded) {
		return nil, false
	}
	valid := 1
	for i := len(padded) - padLen; i < len(padded); i++ {
		valid &= subtle.ConstantTimeByteEq(padded[i], byte(padLen))
	}
	if valid != 1 {
		return nil, false
	}
	return padded[:len(padded)-padLen], true
}

// NormalizeDuration runs op and then sleeps off any remaining time below
// floor, so the total wall-clock time of the call is never less than floor
// regardless of which internal branch op took. Used only where a substep is
// not itself constant-time and a variable-time early return could leak
// which branch ran (e.g. a handshake rejection path that would otherwise
// return faster than the accept path).
func NormalizeDuration(op func(), floor time.Duration) {
	start := time.Now()
	op()
	if elapsed := time.Since(start); elapsed < floor {
		time.Sleep(floor - elapsed)
	}
}
