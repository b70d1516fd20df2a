package api

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/paperfeed/internal/models"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// KeysRequest is the body of POST /api/keys.
type KeysRequest struct {
	ZoteroUserID          string `json:"zotero_user_id" example:"1234567"`
	ZoteroAPIKey          string `json:"zotero_api_key" example:"abcd..."`
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key" example:"efgh..."`
}

func (k KeysRequest) credentials() models.Credentials {
	return models.Credentials{
		ZoteroUserID:          strings.TrimSpace(k.ZoteroUserID),
		ZoteroAPIKey:          strings.TrimSpace(k.ZoteroAPIKey),
		SemanticScholarAPIKey: strings.TrimSpace(k.SemanticScholarAPIKey),
	}
}

// KeysResponse shows stored credentials with the API keys masked.
type KeysResponse struct {
	ZoteroUserID          string `json:"zotero_user_id" validate:"required"`
	ZoteroAPIKey          string `json:"zotero_api_key" example:"************1a2b" validate:"required"`
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key" example:"************3c4d" validate:"required"`
	HasKeys               bool   `json:"has_keys" validate:"required"`
}

func maskedKeys(c models.Credentials) KeysResponse {
	return KeysResponse{
		ZoteroUserID:          c.ZoteroUserID,
		ZoteroAPIKey:          mask(c.ZoteroAPIKey),
		SemanticScholarAPIKey: mask(c.SemanticScholarAPIKey),
		HasKeys:               c.Complete(),
	}
}

// mask keeps the last four characters of a secret.
func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// StatusResponse describes the stored refresh state of the active scope.
type StatusResponse struct {
	LastRefresh         string `json:"last_refresh" example:"2024-03-05"`
	HasKeys             bool   `json:"has_keys" validate:"required"`
	SeedCount           int    `json:"seed_count" validate:"required"`
	RecommendationCount int    `json:"recommendation_count" validate:"required"`
	Backend             string `json:"backend" example:"file" validate:"required"`
}

// FeedTokenResponse is returned by GET /api/feed-token.
type FeedTokenResponse struct {
	Token   string `json:"token" validate:"required"`
	FeedURL string `json:"feed_url" example:"https://example.org/feed.xml?token=..." validate:"required"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" example:"ada"`
	Email    string `json:"email" example:"ada@example.org"`
	Password string `json:"password"`
}

// Validate checks the registration fields.
func (r *RegisterRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 64), validation.Match(usernamePattern)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), validation.Match(emailPattern)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
	)
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" example:"ada"`
	Password string `json:"password"`
}
