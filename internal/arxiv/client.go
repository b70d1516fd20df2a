// Package arxiv searches recent machine-learning preprints on arXiv.
package arxiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"golang.org/x/time/rate"

	"github.com/starford/paperfeed/internal/upstream"
)

const (
	// DefaultBaseURL is the arXiv export API root.
	DefaultBaseURL = "https://export.arxiv.org"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultInterval is the minimum spacing between arXiv requests.
	DefaultInterval = 3 * time.Second

	serviceName = "arxiv"
)

// Paper is one arXiv search result.
type Paper struct {
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Abstract   string   `json:"abstract"`
	PDFURL     string   `json:"pdf_url"`
	Published  string   `json:"published"`
	ID         string   `json:"id"`
	Categories []string `json:"categories"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("arxiv: unexpected status %d: %s", e.Status, e.Body)
}

// StatusCode returns the HTTP status of the failed response.
func (e *APIError) StatusCode() int { return e.Status }

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Interval is the minimum spacing between requests.
	Interval time.Duration
}

// Client queries the arXiv Atom API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
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

// NewClient creates an arXiv client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns up to maxResults papers matching query, newest first.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("arxiv: rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("search_query", query)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/query?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: build request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstream.Observe(serviceName, "error", start)
		return nil, fmt.Errorf("arxiv: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		upstream.Observe(serviceName, strconv.Itoa(resp.StatusCode), start)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	parser := &atom.Parser{}
	feed, err := parser.Parse(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		upstream.Observe(serviceName, "decode_error", start)
		return nil, fmt.Errorf("arxiv: parse feed: %w", err)
	}
	upstream.Observe(serviceName, "ok", start)

	papers := make([]Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		papers = append(papers, toPaper(e))
	}
	return papers, nil
}

func toPaper(e *atom.Entry) Paper {
	p := Paper{
		Title:      collapse(e.Title),
		Abstract:   strings.TrimSpace(e.Summary),
		ID:         e.ID,
		Authors:    []string{},
		Categories: []string{},
	}
	for _, a := range e.Authors {
		if a != nil && a.Name != "" {
			p.Authors = append(p.Authors, a.Name)
		}
	}
	for _, cat := range e.Categories {
		if cat != nil && cat.Term != "" {
			p.Categories = append(p.Categories, cat.Term)
		}
	}
	for _, l := range e.Links {
		if l != nil && (l.Title == "pdf" || l.Type == "application/pdf") {
			p.PDFURL = l.Href
			break
		}
	}
	if p.PDFURL == "" && strings.Contains(e.ID, "/abs/") {
		p.PDFURL = strings.Replace(e.ID, "/abs/", "/pdf/", 1)
	}
	if e.PublishedParsed != nil {
		p.Published = e.PublishedParsed.UTC().Format("2006-01-02")
	}
	return p
}

// collapse folds the line breaks arXiv inserts into long titles.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
