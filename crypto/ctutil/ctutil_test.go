package ctutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEq(t *testing.T) {
	assert.True(t, Eq([]byte("hello"), []byte("hello")))
	assert.False(t, Eq([]byte("hello"), []byte("hellp")))
	assert.False(t, Eq([]byte("hello"), []byte("hell")))
	assert.True(t, Eq(nil, nil))
}

func TestSelect(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5, 6}
	assert.Equal(t, a, Select(true, a, b))
	assert.Equal(t, b, Select(false, a, b))
}

func TestSelectPanicsOnLengthMismatch(t *testing.T) {
	assert.Panics(t, func() {
		Select(true, []byte{1}, []byte{1, 2})
	})
}

func TestPadUnpadRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32} {
		pt := make([]byte, n)
		for i := range pt {
			pt[i] = byte(i)
		}
		padded := PadBlock(pt, 16)
		assert.Equal(t, 0, len(padded)%16)

		got, ok := UnpadBlock(padded, 16)
		assert.True(t, ok)
		assert.Equal(t, pt, got)
	}
}

func TestUnpadRejectsMalformed(t *testing.T) {
	_, ok := UnpadBlock([]byte{1, 2, 3, 0}, 16)
	assert.False(t, ok)

	_, ok = UnpadBlock(nil, 16)
	assert.False(t, ok)
}

func TestNormalizeDurationEnforcesFloor(t *testing.T) {
	start := time.Now()
	NormalizeDuration(func() {}, 20*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
