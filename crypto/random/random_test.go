package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillPopulatesBuffer(t *testing.T) {
	buf := make([]byte, 32)
	require.NoError(t, Fill(buf))

	zero := make([]byte, 32)
	assert.NotEqual(t, zero, buf, "Fill should not leave the buffer all-zero (astronomically unlikely if correct)")
}

func TestBytesLength(t *testing.T) {
	b, err := Bytes(24)
	require.NoError(t, err)
	assert.Len(t, b, 24)
}

func TestBytesAreNotRepeated(t *testing.T) {
	a, err := Bytes(32)
	require.NoError(t, err)
	b, err := Bytes(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
