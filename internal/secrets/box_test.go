package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxRoundTrip(t *testing.T) {
	box, err := NewBox(make([]byte, KeySize))
	require.NoError(t, err)

	ciphertext, err := box.Encrypt("ya29.super-secret-token")
	require.NoError(t, err)
	assert.NotEqual(t, "ya29.super-secret-token", ciphertext)

	plaintext, err := box.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "ya29.super-secret-token", plaintext)
}

func TestBoxNonceVariesPerEncryption(t *testing.T) {
	box, err := NewBox(make([]byte, KeySize))
	require.NoError(t, err)

	first, err := box.Encrypt("token")
	require.NoError(t, err)
	second, err := box.Encrypt("token")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestBoxRejectsWrongKeySize(t *testing.T) {
	_, err := NewBox(make([]byte, 16))
	assert.Error(t, err)
}

func TestBoxRejectsTamperedCiphertext(t *testing.T) {
	box, err := NewBox(make([]byte, KeySize))
	require.NoError(t, err)

	ciphertext, err := box.Encrypt("token")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = box.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestBoxDecryptGarbage(t *testing.T) {
	box, err := NewBox(make([]byte, KeySize))
	require.NoError(t, err)

	_, err = box.Decrypt("not base64 at all!!")
	assert.Error(t, err)

	// Valid base64 but shorter than a nonce.
	_, err = box.Decrypt(base64.StdEncoding.EncodeToString([]byte("abc")))
	assert.Error(t, err)
}

func TestNewBoxFromBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(make([]byte, KeySize))

	box, err := NewBoxFromBase64(encoded)
	require.NoError(t, err)

	ciphertext, err := box.Encrypt("token")
	require.NoError(t, err)
	plaintext, err := box.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "token", plaintext)

	_, err = NewBoxFromBase64("%%%")
	assert.Error(t, err)
}
