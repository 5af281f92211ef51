package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize    = 32
	saltSize   = 16
	nonceSize  = 12
	iterations = 100000

	// encPrefix marks values that went through EncryptString. DecryptIfNeeded
	// passes anything else through unchanged.
	encPrefix = "enc:"
)

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
}

// EncryptString seals a venue credential with AES-256-GCM under a key derived
// from EXCHANGE_CREDENTIALS_KEY. Output layout: enc:base64(salt|nonce|ciphertext).
func EncryptString(plaintext string) (string, error) {
	cfg := GetConfig()

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(cfg.ExchangeCRKey, salt))
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	payload := make([]byte, 0, saltSize+nonceSize+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return encPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string) (string, error) {
	cfg := GetConfig()

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding credential: %w", err)
	}
	if len(payload) < saltSize+nonceSize {
		return "", fmt.Errorf("credential payload too short")
	}

	salt := payload[:saltSize]
	nonce := payload[saltSize : saltSize+nonceSize]
	sealed := payload[saltSize+nonceSize:]

	block, err := aes.NewCipher(deriveKey(cfg.ExchangeCRKey, salt))
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting credential: %w", err)
	}

	return string(plaintext), nil
}

// DecryptIfNeeded decrypts values produced by EncryptString and returns plain
// values untouched, so env vars can hold either form.
func DecryptIfNeeded(value string) (string, error) {
	if !strings.HasPrefix(value, encPrefix) {
		return value, nil
	}
	return DecryptString(value)
}
