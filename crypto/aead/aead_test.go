package aead

import (
	"testing"

	"github.com/aegis-chat/aegis/crypto/random"
	"github.com/aegis-chat/aegis/internal/aerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureKeyNonce(t *testing.T) (key, nonce []byte) {
	t.Helper()
	key, err := random.Bytes(KeySize)
	require.NoError(t, err)
	nonce, err = random.Bytes(NonceSize)
	require.NoError(t, err)
	return key, nonce
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, nonce := fixtureKeyNonce(t)
	aad := []byte("header-bytes")
	pt := []byte("hello")

	ct, err := Seal(key, nonce, aad, pt)
	require.NoError(t, err)
	assert.Len(t, ct, len(pt)+TagSize)

	got, err := Open(key, nonce, aad, ct)
	require.NoError(t, err)
	assert.Equal(t, pt, got)
}

func TestOpenFailsOnTamperedTag(t *testing.T) {
	key, nonce := fixtureKeyNonce(t)
	aad := []byte("header")
	ct, err := Seal(key, nonce, aad, []byte("hello"))
	require.NoError(t, err)

	ct[len(ct)-1] ^= 0x01

	_, err = Open(key, nonce, aad, ct)
	require.Error(t, err)
	assert.True(t, aerr.Is(err, aerr.AuthFailed))
}

func TestOpenFailsOnWrongAAD(t *testing.T) {
	key, nonce := fixtureKeyNonce(t)
	ct, err := Seal(key, nonce, []byte("header-a"), []byte("hello"))
	require.NoError(t, err)

	_, err = Open(key, nonce, []byte("header-b"), ct)
	require.Error(t, err)
	assert.True(t, aerr.Is(err, aerr.AuthFailed))
}

func TestOpenFailsOnBitFlipInCiphertext(t *testing.T) {
	key, nonce := fixtureKeyNonce(t)
	aad := []byte("header")
	ct, err := Seal(key, nonce, aad, []byte("hello world"))
	require.NoError(t, err)

	ct[0] ^= 0x01
	_, err = Open(key, nonce, aad, ct)
	require.Error(t, err)
	assert.True(t, aerr.Is(err, aerr.AuthFailed))
}
