package infra

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Encryptor seals sensitive column values with AES-256-GCM. The nonce is
// prepended to the ciphertext.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an encryptor from a 32-byte hex-encoded key.
func NewEncryptor(hexKey string) (*Encryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext. The result is nonce || ciphertext.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// EncryptString seals a string column value and hex-encodes the result.
func (e *Encryptor) EncryptString(plaintext string) (string, error) {
	sealed, err := e.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (e *Encryptor) DecryptString(encoded string) (string, error) {
	sealed, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	plaintext, err := e.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Decrypt opens a nonce || ciphertext blob.
func (e *Encryptor) Decrypt(sealed []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(sealed) < ns {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plaintext, err := e.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
