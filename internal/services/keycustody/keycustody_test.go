package keycustody

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2048-bit keys keep the test fast; the service itself is key-size agnostic.
func testService(t *testing.T) *Service {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewService(&key.PublicKey, key)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := testService(t)
	plaintext := "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	encKey, encSym, salt, err := svc.Encrypt(plaintext, "42")
	require.NoError(t, err)
	assert.NotEmpty(t, encKey)
	assert.NotEmpty(t, encSym)
	assert.Len(t, salt, saltSize*2)

	got, err := svc.Decrypt(encKey, encSym, "42", salt)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWrongUser(t *testing.T) {
	svc := testService(t)

	encKey, encSym, salt, err := svc.Encrypt("secret-key-material", "42")
	require.NoError(t, err)

	// The nonce is derived from the user ID, so the wrong user cannot
	// open the ciphertext even with the operator private key.
	_, err = svc.Decrypt(encKey, encSym, "43", salt)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecryptWrongSalt(t *testing.T) {
	svc := testService(t)

	encKey, encSym, _, err := svc.Encrypt("secret-key-material", "42")
	require.NoError(t, err)

	_, err = svc.Decrypt(encKey, encSym, "42", "00000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	svc := testService(t)

	encKey, encSym, salt, err := svc.Encrypt("secret-key-material", "42")
	require.NoError(t, err)

	tampered := "ff" + encKey[2:]
	_, err = svc.Decrypt(tampered, encSym, "42", salt)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestEncryptUniquePerCall(t *testing.T) {
	svc := testService(t)

	k1, s1, salt1, err := svc.Encrypt("same-material", "42")
	require.NoError(t, err)
	k2, s2, salt2, err := svc.Encrypt("same-material", "42")
	require.NoError(t, err)

	assert.NotEqual(t, salt1, salt2)
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, s1, s2)
}

func TestWriteAndLoadKeyPair(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	pubPath := dir + "/operator.pub.pem"
	privPath := dir + "/operator.pem"
	require.NoError(t, WriteKeyPair(key, pubPath, privPath))

	pub, err := LoadPublicKey(pubPath)
	require.NoError(t, err)
	priv, err := LoadPrivateKey(privPath)
	require.NoError(t, err)

	svc := NewService(pub, priv)
	encKey, encSym, salt, err := svc.Encrypt("round-trip-through-pem", "7")
	require.NoError(t, err)
	got, err := svc.Decrypt(encKey, encSym, "7", salt)
	require.NoError(t, err)
	assert.Equal(t, "round-trip-through-pem", got)
}
