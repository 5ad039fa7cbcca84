// Package replay implements the sliding-window replay guard each session
// keeps per direction: a highest-seen sequence number plus a 128-bit bitmap
// of recently accepted sequences behind it. The sliding-bitmap shape is the
// same one WireGuard's receive path uses (device/keypair.go's
// replayFilter.ValidateCounter, gating every inbound packet before
// decryption) — that package itself isn't vendored here, so this is a
// from-scratch reimplementation of the same windowing idea rather than an
// adaptation of WireGuard's source.
package replay

import (
	"math/bits"

	"github.com/aegis-chat/aegis/internal/aerr"
)

// WindowSize is the width of the sliding bitmap, in sequence numbers.
const WindowSize = 128

const bitmapWords = WindowSize / 64

// Window is a per-direction replay guard. The zero value is ready to use:
// highestSeen starts at 0 and bitmap empty, matching "no sequence observed
// yet."
type Window struct {
	highestSeen uint64
	seenAny     bool
	bitmap      [bitmapWords]uint64
}

// Check validates candidate sequence s against the window, updating state on
// acceptance. Returns nil if s is fresh (accept), or a *aerr.Error with Kind
// Replay if s is a duplicate or falls outside the trailing window.
func (w *Window) Check(s uint64) error {
	if !w.seenAny {
		w.seenAny = true
		w.highestSeen = s
		w.setBit(0)
		return nil
	}

	switch {
	case s > w.highestSeen:
		shift := s - w.highestSeen
		w.shiftLeft(shift)
		w.highestSeen = s
		w.setBit(0)
		return nil

	case s == w.highestSeen:
		return aerr.New(aerr.Replay, "duplicate sequence number")

	default:
		age := w.highestSeen - s
		if age >= WindowSize {
			return aerr.New(aerr.Replay, "sequence number too old for replay window")
		}
		if w.testBit(age) {
			return aerr.New(aerr.Replay, "duplicate sequence number within window")
		}
		w.setBit(age)
		return nil
	}
}

// setBit marks position p (0 = most recent / highestSeen itself) as seen.
func (w *Window) setBit(p uint64) {
	word, bit := p/64, p%64
	w.bitmap[word] |= 1 << bit
}

func (w *Window) testBit(p uint64) bool {
	word, bit := p/64, p%64
	return w.bitmap[word]&(1<<bit) != 0
}

// shiftLeft shifts the entire bitmap left by n bit positions (n may exceed
// WindowSize, in which case the bitmap is simply cleared), implementing
// "advance the window" when a new highest-seen sequence arrives.
func (w *Window) shiftLeft(n uint64) {
	if n >= WindowSize {
		w.bitmap = [bitmapWords]uint64{}
		return
	}
	wordShift := int(n / 64)
	bitShift := uint(n % 64)

	var out [bitmapWords]uint64
	for i := bitmapWords - 1; i >= 0; i-- {
		src := i - wordShift
		if src < 0 {
			continue
		}
		out[i] = w.bitmap[src] << bitShift
		if bitShift != 0 && src-1 >= 0 {
			out[i] |= w.bitmap[src-1] >> (64 - bitShift)
		}
	}
	w.bitmap = out
}

// PopCount returns the number of sequences currently marked seen within the
// window, for diagnostics/tests.
func (w *Window) PopCount() int {
	n := 0
	for _, word := range w.bitmap {
		n += bits.OnesCount64(word)
	}
	return n
}
