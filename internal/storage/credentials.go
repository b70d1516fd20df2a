package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/starford/paperfeed/internal/apperr"
	"github.com/starford/paperfeed/internal/models"
)

// CredentialsFile is the name of the flat-file credentials document.
const CredentialsFile = "api_keys.json"

// Credentials reads and writes api_keys.json, caching the decoded value
// until Save or Invalidate is called.
type Credentials struct {
	fs Provider

	mu     sync.RWMutex
	cached *models.Credentials
}

// NewCredentials creates a credentials store on top of fs.
func NewCredentials(fs Provider) *Credentials {
	return &Credentials{fs: fs}
}

// Load returns the stored credentials. A missing file yields empty
// credentials and no error.
func (c *Credentials) Load() (models.Credentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		creds := *c.cached
		c.mu.RUnlock()
		return creds, nil
	}
	c.mu.RUnlock()

	data, err := c.fs.Read(CredentialsFile)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Credentials{}, nil
	}
	if err != nil {
		return models.Credentials{}, err
	}
	var creds models.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return models.Credentials{}, fmt.Errorf("storage: decode %s: %w", CredentialsFile, err)
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return creds, nil
}

// Save overwrites the stored credentials wholesale.
func (c *Credentials) Save(creds models.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", CredentialsFile, err)
	}
	if err := c.fs.Write(CredentialsFile, data); err != nil {
		return err
	}
	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}

// Invalidate drops the cached value so the next Load rereads the file.
func (c *Credentials) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
