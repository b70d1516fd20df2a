// Package recommender fetches related papers from the Semantic Scholar
// Recommendations API.
package recommender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/starford/paperfeed/internal/upstream"
)

const (
	// DefaultBaseURL is the Semantic Scholar API root.
	DefaultBaseURL = "https://api.semanticscholar.org"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultDelay is the courtesy pause before every attempt.
	DefaultDelay = 1500 * time.Millisecond

	// DefaultMaxAttempts bounds the retry-until-complete loop.
	DefaultMaxAttempts = 5

	// Fields requested for every recommended paper.
	Fields = "title,authors,url,publicationDate,abstract"

	apiKeyHeader = "x-api-key"
	serviceName  = "semantic_scholar"
	breakerName  = "semantic-scholar-api"
)

// Author is a recommended paper author.
type Author struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

// Paper is one entry of recommendedPapers.
type Paper struct {
	PaperID         string   `json:"paperId"`
	Title           string   `json:"title"`
	Authors         []Author `json:"authors"`
	URL             string   `json:"url"`
	PublicationDate string   `json:"publicationDate"`
	Abstract        string   `json:"abstract"`
}

// Response is the recommendations endpoint payload.
type Response struct {
	RecommendedPapers []Paper `json:"recommendedPapers"`
}

type request struct {
	PositivePaperIDs []string `json:"positivePaperIds"`
}

// APIError is returned for non-200 responses.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("semantic scholar: unexpected status %d: %s", e.Status, e.Body)
}

// StatusCode returns the HTTP status of the failed response.
func (e *APIError) StatusCode() int { return e.Status }

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls POST /recommendations/v1/papers through a circuit breaker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker[*Response]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a Semantic Scholar recommendations client.
func NewClient(cfg Config, logger *slog.Logger, opts ...ClientOption) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		cb:         upstream.NewBreaker[*Response](breakerName, time.Minute, logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Recommend requests up to limit papers related to the positive paper ids.
// A non-200 status is reported as *APIError.
func (c *Client) Recommend(ctx context.Context, apiKey string, paperIDs []string, limit int) (*Response, error) {
	return c.cb.Execute(func() (*Response, error) {
		return c.recommend(ctx, apiKey, paperIDs, limit)
	})
}

func (c *Client) recommend(ctx context.Context, apiKey string, paperIDs []string, limit int) (*Response, error) {
	body, err := json.Marshal(request{PositivePaperIDs: paperIDs})
	if err != nil {
		return nil, fmt.Errorf("semantic scholar: encode request: %w", err)
	}

	q := url.Values{}
	q.Set("fields", Fields)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/recommendations/v1/papers?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("semantic scholar: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstream.Observe(serviceName, "error", start)
		return nil, upstream.Abandoned(ctx, fmt.Errorf("semantic scholar: request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		upstream.Observe(serviceName, strconv.Itoa(resp.StatusCode), start)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&out); err != nil {
		upstream.Observe(serviceName, "decode_error", start)
		return nil, upstream.Abandoned(ctx, fmt.Errorf("semantic scholar: decode response: %w", err))
	}
	upstream.Observe(serviceName, "ok", start)
	return &out, nil
}
