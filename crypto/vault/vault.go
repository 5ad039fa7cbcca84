// Package vault implements the ephemeral secret buffer the ratchet's keys
// are held in: root keys, chain keys, and message keys all live inside a
// Buffer rather than a bare []byte, so that release is guaranteed to
// zeroize rather than left to whichever caller happens to remember. KEM
// secret keys are not Buffers; they stay inside circl's own key type (see
// crypto/kem).
//
// The zeroize-on-release pattern is grounded on the teacher's own
// SecureSession.Close (which overwrote its key slices in place before
// dropping them) and on the wipe() helper in ericlagergren-dr/dr.go, which
// uses a noinline function plus runtime.KeepAlive to stop the compiler from
// proving the write is dead and eliding it.
package vault

import (
	"runtime"
	"sync"

	"github.com/aegis-chat/aegis/crypto/random"
)

// Buffer is an owned, zero-on-release byte buffer. The zero value is not
// usable; construct with New or NewRandom.
type Buffer struct {
	mu       sync.Mutex
	b        []byte
	released bool
	locked   bool
}

// New allocates a zero-initialized Buffer of n bytes and attempts to lock
// its pages into physical memory. mlock failure is logged-worthy but not an
// error: the buffer is still usable, just swappable.
func New(n int) *Buffer {
	v := &Buffer{b: make([]byte, n)}
	v.tryLock()
	return v
}

// NewRandom allocates an n-byte Buffer filled from the CSPRNG (crypto/random,
// C1). EntropyFailure from the CSPRNG is returned as-is.
func NewRandom(n int) (*Buffer, error) {
	v := New(n)
	if err := random.Fill(v.b); err != nil {
		v.Release()
		return nil, err
	}
	return v, nil
}

// FromBytes takes ownership of an existing slice. The caller must not retain
// or mutate buf after this call; Buffer now exclusively owns it.
func FromBytes(buf []byte) *Buffer {
	v := &Buffer{b: buf}
	v.tryLock()
	return v
}

func (v *Buffer) tryLock() {
	if len(v.b) == 0 {
		return
	}
	if mlock(v.b) == nil {
		v.locked = true
	}
}

// Bytes returns a view of the live secret. The returned slice aliases the
// Buffer's internal storage — it does not extend the Buffer's lifetime, and
// becomes invalid the instant Release is called. Callers must not retain it
// past the call that produced it.
func (v *Buffer) Bytes() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return nil
	}
	return v.b
}

// Len returns the buffer length, valid even after release.
func (v *Buffer) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.b)
}

// Clone makes an explicit, independent copy. Cloning a secret is rare and
// deliberate — ratchet chain advances and message-key derivation construct
// fresh buffers instead of cloning, so Clone exists mainly for tests and for
// the ratchet's retired-key cache, which must keep a copy of a consumed
// message key alive independent of the buffer the caller releases.
func (v *Buffer) Clone() *Buffer {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return New(0)
	}
	cp := make([]byte, len(v.b))
	copy(cp, v.b)
	return FromBytes(cp)
}

// Release overwrites the buffer with zeros — using a path the compiler
// cannot optimize away — unlocks its pages if they were locked, and marks
// the Buffer unusable. Release is idempotent; calling it twice is safe.
func (v *Buffer) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return
	}
	wipe(v.b)
	if v.locked {
		_ = munlock(v.b)
	}
	v.b = nil
	v.released = true
}

//go:noinline
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
