package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var piiAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

var piiHMACKey []byte

// InitCrypto loads the voter-PII key from VOTER_PII_KEY (64 hex chars = 32
// bytes) and prepares the AEAD used at the storage boundary. The same key
// material feeds the HMAC used for the deterministic email digest.
func InitCrypto() error {
	keyHex := os.Getenv("VOTER_PII_KEY")
	if keyHex == "" {
		return fmt.Errorf("VOTER_PII_KEY environment variable not set")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return fmt.Errorf("VOTER_PII_KEY must be %d hex-encoded bytes", chacha20poly1305.KeySize)
	}
	return initCryptoWithKey(key)
}

func initCryptoWithKey(key []byte) error {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("failed to initialize PII cipher: %w", err)
	}
	piiAEAD = aead

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("voter-email-digest"))
	piiHMACKey = mac.Sum(nil)
	return nil
}

// InitTestCrypto seeds the crypto layer with a fixed key. Test use only.
func InitTestCrypto() {
	key := make([]byte, chacha20poly1305.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	if err := initCryptoWithKey(key); err != nil {
		panic(err)
	}
}

// EncryptPII seals a plaintext value (voter name or email) for storage.
// Output is base64(nonce || ciphertext).
func EncryptPII(plaintext string) (string, error) {
	if piiAEAD == nil {
		return "", fmt.Errorf("PII cipher not initialized")
	}
	nonce := make([]byte, piiAEAD.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := piiAEAD.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptPII reverses EncryptPII. Only the admin reporting path calls this.
func DecryptPII(encoded string) (string, error) {
	if piiAEAD == nil {
		return "", fmt.Errorf("PII cipher not initialized")
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("malformed PII ciphertext: %w", err)
	}
	ns := piiAEAD.NonceSize()
	if len(sealed) < ns {
		return "", fmt.Errorf("malformed PII ciphertext: too short")
	}
	plain, err := piiAEAD.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt PII: %w", err)
	}
	return string(plain), nil
}

// HashEmail produces the deterministic digest that carries the vote
// uniqueness index. Case and surrounding whitespace are normalized so
// "Alice@Example.com " and "alice@example.com" count as the same voter.
func HashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	mac := hmac.New(sha256.New, piiHMACKey)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}
