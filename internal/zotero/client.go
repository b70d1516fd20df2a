// Package zotero fetches and normalizes items from the Zotero Web API.
package zotero

import (
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
	// DefaultBaseURL is the Zotero Web API root.
	DefaultBaseURL = "https://api.zotero.org"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultDelay is the courtesy pause before every request.
	DefaultDelay = 1500 * time.Millisecond

	apiVersion  = "3"
	serviceName = "zotero"
	breakerName = "zotero-api"
)

// Creator is a Zotero item creator. Single-field names use Name.
type Creator struct {
	CreatorType string `json:"creatorType"`
	Name        string `json:"name,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
}

// ItemData is the "data" object of a Zotero item.
type ItemData struct {
	Key          string    `json:"key"`
	ItemType     string    `json:"itemType"`
	Title        string    `json:"title"`
	Creators     []Creator `json:"creators"`
	DOI          string    `json:"DOI"`
	AbstractNote string    `json:"abstractNote"`
	Date         string    `json:"date"`
	URL          string    `json:"url"`
}

// Item is one entry of the /items response.
type Item struct {
	Key  string   `json:"key"`
	Data ItemData `json:"data"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zotero: unexpected status %d: %s", e.Status, e.Body)
}

// StatusCode returns the HTTP status of the failed response.
func (e *APIError) StatusCode() int { return e.Status }

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a Zotero Web API v3 client guarded by a circuit breaker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker[[]Item]
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

// NewClient creates a Zotero client.
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
		cb:         upstream.NewBreaker[[]Item](breakerName, time.Minute, logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListItems returns the limit most recently added items of a user library.
func (c *Client) ListItems(ctx context.Context, userID, apiKey string, limit int) ([]Item, error) {
	return c.cb.Execute(func() ([]Item, error) {
		return c.listItems(ctx, userID, apiKey, limit)
	})
}

func (c *Client) listItems(ctx context.Context, userID, apiKey string, limit int) ([]Item, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "dateAdded")
	q.Set("direction", "desc")
	q.Set("format", "json")
	endpoint := fmt.Sprintf("%s/users/%s/items?%s", c.baseURL, url.PathEscape(userID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("zotero: build request: %w", err)
	}
	req.Header.Set("Zotero-API-Key", apiKey)
	req.Header.Set("Zotero-API-Version", apiVersion)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstream.Observe(serviceName, "error", start)
		return nil, upstream.Abandoned(ctx, fmt.Errorf("zotero: request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		upstream.Observe(serviceName, strconv.Itoa(resp.StatusCode), start)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var items []Item
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&items); err != nil {
		upstream.Observe(serviceName, "decode_error", start)
		return nil, upstream.Abandoned(ctx, fmt.Errorf("zotero: decode response: %w", err))
	}
	upstream.Observe(serviceName, "ok", start)
	return items, nil
}
