// Copyright (c) 2024 djtezos contributors

package cryptutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret() []byte {
	return []byte("01234567890123456789012345678901")
}

func TestNewRejectsShortSecret(t *testing.T) {
	_, err := New([]byte("too-short"))
	require.Error(t, err)
	var short ErrShortSecret
	require.ErrorAs(t, err, &short)
	assert.Equal(t, len("too-short"), short.Len)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New(testSecret())
	require.NoError(t, err)

	plaintext := []byte("edsk-super-secret-private-key-material")
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptIsDeterministicForFixedKeyIV(t *testing.T) {
	c, err := New(testSecret())
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "fixed key/IV must produce identical ciphertext for identical input")
}

func TestEncryptEmptyReturnsNil(t *testing.T) {
	c, err := New(testSecret())
	require.NoError(t, err)

	ct, err := c.Encrypt(nil)
	require.NoError(t, err)
	assert.Nil(t, ct)
}

func TestDecryptEmptyReturnsNil(t *testing.T) {
	c, err := New(testSecret())
	require.NoError(t, err)

	pt, err := c.Decrypt(nil)
	require.NoError(t, err)
	assert.Nil(t, pt)
}

func TestDecryptRejectsNonBlockAlignedCiphertext(t *testing.T) {
	c, err := New(testSecret())
	require.NoError(t, err)

	_, err = c.Decrypt([]byte("not-a-multiple-of-16-bytes"))
	assert.Error(t, err)
}

func TestDecryptRejectsCorruptedPadding(t *testing.T) {
	c, err := New(testSecret())
	require.NoError(t, err)

	ciphertext, err := c.Encrypt([]byte("some plaintext here"))
	require.NoError(t, err)

	corrupted := append([]byte(nil), ciphertext...)
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err = c.Decrypt(corrupted)
	assert.Error(t, err)
}

func TestDifferentSecretsProduceDifferentCiphertext(t *testing.T) {
	c1, err := New(testSecret())
	require.NoError(t, err)
	c2, err := New([]byte("98765432109876543210987654321098"))
	require.NoError(t, err)

	plaintext := []byte("identical plaintext, different key")
	ct1, err := c1.Encrypt(plaintext)
	require.NoError(t, err)
	ct2, err := c2.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, ct1, ct2)
}
