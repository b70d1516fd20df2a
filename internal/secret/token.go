package secret

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/starford/paperfeed/internal/models"
)

// EncodeCredentials packs creds into an opaque URL-safe token for
// unauthenticated feed pulls.
func (e *Encryptor) EncodeCredentials(creds models.Credentials) (string, error) {
	data, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("secret: encode credentials: %w", err)
	}
	return e.Encrypt(string(data))
}

// DecodeCredentials unpacks a token produced by EncodeCredentials.
func (e *Encryptor) DecodeCredentials(token string) (models.Credentials, error) {
	if token == "" {
		return models.Credentials{}, ErrDecryptionFailed
	}
	plain, err := e.Decrypt(token)
	if err != nil {
		return models.Credentials{}, err
	}
	var creds models.Credentials
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return models.Credentials{}, ErrDecryptionFailed
	}
	return creds, nil
}
