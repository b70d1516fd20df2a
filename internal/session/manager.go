package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/starford/paperfeed/internal/apperr"
	"github.com/starford/paperfeed/internal/models"
)

type ctxKey struct{}

// Manager issues session cookies and exposes per-session data.
type Manager struct {
	store      *Store
	cookieName string
	secure     bool
	ttl        time.Duration
}

// NewManager creates a Manager.
func NewManager(store *Store, cookieName string, secure bool, ttl time.Duration) *Manager {
	if cookieName == "" {
		cookieName = "paperfeed_session"
	}
	return &Manager{store: store, cookieName: cookieName, secure: secure, ttl: ttl}
}

// Store returns the backing store.
func (m *Manager) Store() *Store { return m.store }

// Middleware attaches a session id to every request, issuing a new cookie
// when the request carries none or an invalid one.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(m.cookieName); err == nil {
			if _, parseErr := uuid.Parse(c.Value); parseErr == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			m.setCookie(w, id, m.ttl)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (m *Manager) setCookie(w http.ResponseWriter, id string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Rotate moves the request to a fresh session id, dropping the old one.
// Used on login and logout.
func (m *Manager) Rotate(w http.ResponseWriter, r *http.Request) (string, error) {
	if old, ok := IDFromContext(r.Context()); ok {
		if err := m.store.Destroy(old); err != nil {
			return "", err
		}
	}
	id := uuid.NewString()
	m.setCookie(w, id, m.ttl)
	return id, nil
}

// IDFromContext returns the session id attached by Middleware.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Credentials returns the credentials stored in a session; a session
// without any yields empty credentials.
func (m *Manager) Credentials(id string) (models.Credentials, error) {
	var creds models.Credentials
	err := m.store.Get(id, FieldCredentials, &creds)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Credentials{}, nil
	}
	return creds, err
}

// SaveCredentials overwrites the credentials of a session.
func (m *Manager) SaveCredentials(id string, creds models.Credentials) error {
	return m.store.Set(id, FieldCredentials, creds)
}

// UserID returns the user bound to a session.
func (m *Manager) UserID(id string) (int64, error) {
	var uid int64
	if err := m.store.Get(id, FieldUserID, &uid); err != nil {
		return 0, err
	}
	return uid, nil
}

// BindUser binds a user to a session.
func (m *Manager) BindUser(id string, userID int64) error {
	return m.store.Set(id, FieldUserID, userID)
}

// UnbindUser drops the user bound to a session.
func (m *Manager) UnbindUser(id string) error {
	return m.store.Delete(id, FieldUserID)
}

// State returns the refresh state store of a session.
func (m *Manager) State(id string) *StateStore {
	return NewStateStore(m.store, id)
}
