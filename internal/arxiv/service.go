package arxiv

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/starford/paperfeed/internal/metrics"
)

// Cache statuses reported in Result.
const (
	CacheInitial = "initial"
	CacheFresh   = "fresh"
	CacheExpired = "expired"
)

const (
	// DefaultCacheTTL is how long a query result is served without refetching.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultMaxResults is the number of papers requested per search.
	DefaultMaxResults = 100
)

// Searcher runs an arXiv query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Paper, error)
}

// Result is the response of Service.Papers.
type Result struct {
	Papers          []Paper   `json:"papers"`
	Timestamp       time.Time `json:"timestamp"`
	CacheStatus     string    `json:"cache_status"`
	CacheAge        *float64  `json:"cache_age"`
	TotalSearched   int       `json:"total_searched"`
	MatchPercentage float64   `json:"match_percentage"`
	SearchQuery     string    `json:"search_query"`
}

type entry struct {
	fetchedAt time.Time
	papers    []Paper
}

// Service caches arXiv searches per query.
type Service struct {
	searcher   Searcher
	ttl        time.Duration
	maxResults int
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]entry
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service.
func NewService(searcher Searcher, ttl time.Duration, maxResults int, logger *slog.Logger, opts ...ServiceOption) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	s := &Service{
		searcher:   searcher,
		ttl:        ttl,
		maxResults: maxResults,
		logger:     logger,
		now:        time.Now,
		cache:      make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Papers returns recent papers matching the comma-separated keywords.
// Expired entries are refetched; a failed fetch falls back to the expired
// entry, or to an empty list when nothing was cached. CacheStatus and
// CacheAge describe the cache entry once the call is done, so only a
// failed first fetch reports CacheInitial.
func (s *Service) Papers(ctx context.Context, keywords string) Result {
	query := BuildQuery(keywords)
	now := s.now()

	s.mu.Lock()
	cached, ok := s.cache[query]
	s.mu.Unlock()

	res := Result{
		Timestamp:     now,
		TotalSearched: s.maxResults,
		SearchQuery:   query,
	}

	if ok && now.Sub(cached.fetchedAt) < s.ttl {
		res.Papers = cached.papers
	} else if papers, err := s.searcher.Search(ctx, query, s.maxResults); err != nil {
		s.logger.Error("arxiv search failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		if ok {
			res.Papers = cached.papers
		}
	} else {
		cached, ok = entry{fetchedAt: now, papers: papers}, true
		s.mu.Lock()
		s.cache[query] = cached
		s.mu.Unlock()
		s.logger.Info("arxiv papers cached",
			slog.String("query", query),
			slog.Int("count", len(papers)))
		res.Papers = papers
	}

	res.CacheStatus = CacheInitial
	if ok {
		age := now.Sub(cached.fetchedAt).Seconds()
		res.CacheAge = &age
		res.CacheStatus = CacheFresh
		if now.Sub(cached.fetchedAt) >= s.ttl {
			res.CacheStatus = CacheExpired
		}
	}
	metrics.ArxivCacheTotal.WithLabelValues(res.CacheStatus).Inc()

	if res.Papers == nil {
		res.Papers = []Paper{}
	}
	res.MatchPercentage = matchPercentage(len(res.Papers), res.TotalSearched)
	return res
}

func matchPercentage(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
