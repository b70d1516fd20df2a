// Package scope resolves, once per request, which credentials and which
// refresh-state store apply: the shared data directory, the visitor's
// session, the logged-in user's record, or a feed token.
package scope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/starford/paperfeed/internal/apperr"
	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/refresh"
	"github.com/starford/paperfeed/internal/secret"
	"github.com/starford/paperfeed/internal/session"
	"github.com/starford/paperfeed/internal/storage"
	"github.com/starford/paperfeed/internal/userdb"
)

// Kind names a credential-sourcing strategy.
type Kind string

// Strategies.
const (
	KindFile      Kind = "file"
	KindSession   Kind = "session"
	KindDatabase  Kind = "database"
	KindFeedToken Kind = "feed_token"
)

// Scope is the resolved context of one request.
type Scope struct {
	Kind        Kind
	Credentials models.Credentials
	Store       refresh.StateStore

	save func(ctx context.Context, creds models.Credentials) error
}

// SaveCredentials overwrites the credentials of the scope.
func (s *Scope) SaveCredentials(ctx context.Context, creds models.Credentials) error {
	if s.save == nil {
		return fmt.Errorf("scope: %s credentials are read-only: %w", s.Kind, apperr.ErrConflict)
	}
	if err := s.save(ctx, creds); err != nil {
		return err
	}
	s.Credentials = creds
	return nil
}

// Resolver produces the Scope of a request.
type Resolver interface {
	Kind() Kind
	Resolve(r *http.Request) (*Scope, error)
}

// adminOverride forces the recommender key when admin mode is on.
type adminOverride string

func (a adminOverride) apply(c models.Credentials) models.Credentials {
	if a != "" {
		c.SemanticScholarAPIKey = string(a)
	}
	return c
}

// FileBacked shares one credentials file and one state directory
// across all visitors.
type FileBacked struct {
	creds *storage.Credentials
	state *storage.StateFiles
	admin adminOverride
}

// NewFileBacked creates the flat-file strategy.
func NewFileBacked(creds *storage.Credentials, state *storage.StateFiles, adminKey string) *FileBacked {
	return &FileBacked{creds: creds, state: state, admin: adminOverride(adminKey)}
}

// Kind implements Resolver.
func (f *FileBacked) Kind() Kind { return KindFile }

// Resolve implements Resolver.
func (f *FileBacked) Resolve(*http.Request) (*Scope, error) {
	return f.Scope()
}

// Scope returns the file-backed scope without a request, for the CLI and MCP server.
func (f *FileBacked) Scope() (*Scope, error) {
	creds, err := f.creds.Load()
	if err != nil {
		return nil, err
	}
	return &Scope{
		Kind:        KindFile,
		Credentials: f.admin.apply(creds),
		Store:       f.state,
		save: func(_ context.Context, c models.Credentials) error {
			return f.creds.Save(c)
		},
	}, nil
}

// SessionBacked keeps credentials and state in the visitor's session.
type SessionBacked struct {
	mgr   *session.Manager
	admin adminOverride
}

// NewSessionBacked creates the session strategy.
func NewSessionBacked(mgr *session.Manager, adminKey string) *SessionBacked {
	return &SessionBacked{mgr: mgr, admin: adminOverride(adminKey)}
}

// Kind implements Resolver.
func (s *SessionBacked) Kind() Kind { return KindSession }

// Resolve implements Resolver.
func (s *SessionBacked) Resolve(r *http.Request) (*Scope, error) {
	id, ok := session.IDFromContext(r.Context())
	if !ok {
		return nil, fmt.Errorf("scope: no session: %w", apperr.ErrUnauthorized)
	}
	creds, err := s.mgr.Credentials(id)
	if err != nil {
		return nil, err
	}
	return &Scope{
		Kind:        KindSession,
		Credentials: s.admin.apply(creds),
		Store:       s.mgr.State(id),
		save: func(_ context.Context, c models.Credentials) error {
			return s.mgr.SaveCredentials(id, c)
		},
	}, nil
}

// UserRecordBacked reads encrypted credentials from the logged-in user's
// row and caches refresh state in the session.
type UserRecordBacked struct {
	mgr   *session.Manager
	users *userdb.DB
	admin adminOverride
}

// NewUserRecordBacked creates the database strategy.
func NewUserRecordBacked(mgr *session.Manager, users *userdb.DB, adminKey string) *UserRecordBacked {
	return &UserRecordBacked{mgr: mgr, users: users, admin: adminOverride(adminKey)}
}

// Kind implements Resolver.
func (u *UserRecordBacked) Kind() Kind { return KindDatabase }

// Resolve implements Resolver. Anonymous requests yield apperr.ErrUnauthorized.
func (u *UserRecordBacked) Resolve(r *http.Request) (*Scope, error) {
	id, ok := session.IDFromContext(r.Context())
	if !ok {
		return nil, fmt.Errorf("scope: no session: %w", apperr.ErrUnauthorized)
	}
	uid, err := u.mgr.UserID(id)
	if err != nil {
		return nil, fmt.Errorf("scope: not logged in: %w", apperr.ErrUnauthorized)
	}
	creds, err := u.users.Credentials(r.Context(), uid)
	if errors.Is(err, apperr.ErrNotFound) {
		// The user row is gone (wiped database); the session must log in again.
		if unbindErr := u.mgr.UnbindUser(id); unbindErr != nil {
			return nil, fmt.Errorf("scope: drop stale user %d: %w", uid, unbindErr)
		}
		return nil, fmt.Errorf("scope: user %d no longer exists: %w", uid, apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	return &Scope{
		Kind:        KindDatabase,
		Credentials: u.admin.apply(creds),
		Store:       u.mgr.State(id),
		save: func(ctx context.Context, c models.Credentials) error {
			return u.users.SetCredentials(ctx, uid, c)
		},
	}, nil
}

// maxTokenStates bounds the in-memory state kept for feed tokens.
const maxTokenStates = 1024

// FeedTokens resolves the credentials encoded in a feed token. State is
// kept in memory per token.
type FeedTokens struct {
	enc   *secret.Encryptor
	admin adminOverride

	mu     sync.Mutex
	states map[string]*refresh.MemoryStore
}

// NewFeedTokens creates the feed-token strategy.
func NewFeedTokens(enc *secret.Encryptor, adminKey string) *FeedTokens {
	return &FeedTokens{enc: enc, admin: adminOverride(adminKey), states: make(map[string]*refresh.MemoryStore)}
}

// Issue encodes creds into a token.
func (f *FeedTokens) Issue(creds models.Credentials) (string, error) {
	return f.enc.EncodeCredentials(creds)
}

// Resolve decodes token into a read-only scope.
func (f *FeedTokens) Resolve(token string) (*Scope, error) {
	creds, err := f.enc.DecodeCredentials(token)
	if err != nil {
		return nil, fmt.Errorf("scope: feed token: %w", apperr.ErrUnauthorized)
	}
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])

	f.mu.Lock()
	st, ok := f.states[key]
	if !ok {
		if len(f.states) >= maxTokenStates {
			for k := range f.states {
				delete(f.states, k)
				break
			}
		}
		st = refresh.NewMemoryStore("token:" + key[:16])
		f.states[key] = st
	}
	f.mu.Unlock()

	return &Scope{
		Kind:        KindFeedToken,
		Credentials: f.admin.apply(creds),
		Store:       st,
	}, nil
}
