package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsZeroed(t *testing.T) {
	v := New(32)
	defer v.Release()
	assert.Equal(t, make([]byte, 32), v.Bytes())
}

func TestNewRandomFillsBuffer(t *testing.T) {
	v, err := NewRandom(32)
	require.NoError(t, err)
	defer v.Release()
	assert.NotEqual(t, make([]byte, 32), v.Bytes())
}

func TestReleaseZeroizes(t *testing.T) {
	v, err := NewRandom(16)
	require.NoError(t, err)

	// Grab the backing array before release to confirm it was wiped.
	raw := v.Bytes()
	v.Release()

	assert.Nil(t, v.Bytes())
	assert.Equal(t, make([]byte, 16), raw, "backing storage must be zeroed on release")
}

func TestReleaseIsIdempotent(t *testing.T) {
	v := New(8)
	v.Release()
	assert.NotPanics(t, func() { v.Release() })
}

func TestCloneIsIndependent(t *testing.T) {
	v, err := NewRandom(16)
	require.NoError(t, err)
	defer v.Release()

	c := v.Clone()
	defer c.Release()

	assert.Equal(t, v.Bytes(), c.Bytes())
	c.Release()
	assert.NotNil(t, v.Bytes(), "releasing the clone must not affect the original")
}

func TestFromBytesTakesOwnership(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	v := FromBytes(raw)
	defer v.Release()
	assert.Equal(t, []byte{1, 2, 3, 4}, v.Bytes())
}
