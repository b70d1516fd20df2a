// Package secret encrypts credentials at rest and in feed tokens.
//
// Ciphertexts are AES-256-GCM with a random 12-byte nonce, laid out as
// base64url(nonce || ciphertext || tag). The AES key is derived from the
// configured secret with HKDF-SHA256, so any non-empty secret is usable.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	hkdfSalt = "paperfeed-credentials"
	hkdfInfo = "credential-encryption-v1"
	keySize  = 32
)

var (
	// ErrEmptySecret is returned when no encryption secret is configured.
	ErrEmptySecret = errors.New("secret: encryption key cannot be empty")

	// ErrDecryptionFailed is returned for tampered or foreign ciphertexts.
	ErrDecryptionFailed = errors.New("secret: decryption failed")

	encoding = base64.RawURLEncoding
)

// Encryptor encrypts and decrypts short strings.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives an AES-256 key from secret.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("secret: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: create gcm: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt returns the URL-safe ciphertext of plaintext. The empty string
// encrypts to the empty string so unset columns stay unset.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := encoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	ns := e.aead.NonceSize()
	if len(raw) < ns+e.aead.Overhead() {
		return "", ErrDecryptionFailed
	}
	plain, err := e.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// GenerateKey returns a random 256-bit secret suitable for ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	b := make([]byte, keySize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("secret: generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
