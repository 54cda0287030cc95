package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIRoundTrip(t *testing.T) {
	InitTestCrypto()

	for _, plaintext := range []string{"Alice Example", "alice@example.com", ""} {
		sealed, err := EncryptPII(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, sealed)

		opened, err := DecryptPII(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}

	// Encryption is randomized; equality of voters is never derived from
	// ciphertext comparison.
	a, err := EncryptPII("alice@example.com")
	require.NoError(t, err)
	b, err := EncryptPII("alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptPIIRejectsGarbage(t *testing.T) {
	InitTestCrypto()

	_, err := DecryptPII("not-base64!!")
	assert.Error(t, err)

	_, err = DecryptPII("dG9vc2hvcnQ=")
	assert.Error(t, err)
}

func TestHashEmailNormalization(t *testing.T) {
	InitTestCrypto()

	base := HashEmail("alice@example.com")
	assert.Equal(t, base, HashEmail("  Alice@Example.COM "))
	assert.NotEqual(t, base, HashEmail("bob@example.com"))
	assert.Len(t, base, 64) // hex-encoded SHA-256
}
