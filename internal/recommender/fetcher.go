package recommender

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/paperfeed/internal/metrics"
	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/upstream"
)

// oversample is the candidate buffer requested per wanted recommendation.
const oversample = 3

// Recommender is the subset of Client used by Fetcher.
type Recommender interface {
	Recommend(ctx context.Context, apiKey string, paperIDs []string, limit int) (*Response, error)
}

// Fetcher assembles complete recommendations over a bounded number of attempts.
type Fetcher struct {
	client      Recommender
	delay       time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewFetcher creates a Fetcher. maxAttempts <= 0 selects DefaultMaxAttempts.
func NewFetcher(client Recommender, delay time.Duration, maxAttempts int, logger *slog.Logger) *Fetcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Fetcher{client: client, delay: delay, maxAttempts: maxAttempts, logger: logger}
}

// Recommend returns at most target recommendations related to seeds, every
// one of them complete. It never fails: missing key, no DOIs, or exhausted
// attempts yield whatever was accumulated.
func (f *Fetcher) Recommend(ctx context.Context, seeds []models.Paper, target int, creds models.Credentials) []models.Recommendation {
	out := []models.Recommendation{}
	if creds.SemanticScholarAPIKey == "" || len(seeds) == 0 || target <= 0 {
		f.logger.Debug("recommender: missing api key or seed papers")
		return out
	}

	ids := paperIDs(seeds)
	if len(ids) == 0 {
		f.logger.Debug("recommender: no DOIs among seed papers")
		return out
	}

	seen := make(map[string]struct{})
	attempts := 0
	for attempt := 1; attempt <= f.maxAttempts && len(out) < target; attempt++ {
		attempts = attempt
		if err := upstream.Pause(ctx, f.delay); err != nil {
			f.logger.Warn("recommender: cancelled", slog.String("error", err.Error()))
			break
		}

		f.logger.Debug("recommender: requesting recommendations",
			slog.Int("seeds", len(ids)),
			slog.Int("attempt", attempt))

		resp, err := f.client.Recommend(ctx, creds.SemanticScholarAPIKey, ids, target*oversample)
		if err != nil {
			f.logger.Error("recommender: upstream error",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}

		for _, p := range resp.RecommendedPapers {
			if len(out) >= target {
				break
			}
			rec, ok := complete(p)
			if !ok {
				continue
			}
			key := dedupKey(p, rec)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, rec)
		}
	}
	metrics.RecommendationAttempts.Observe(float64(attempts))

	f.logger.Debug("recommender: done",
		slog.Int("complete", len(out)),
		slog.Int("target", target),
		slog.Int("attempts", attempts))

	if len(out) > target {
		out = out[:target]
	}
	return out
}

// paperIDs maps seed DOIs to Semantic Scholar "DOI:" identifiers.
func paperIDs(seeds []models.Paper) []string {
	ids := make([]string, 0, len(seeds))
	for _, s := range seeds {
		doi := strings.TrimSpace(s.DOI)
		if doi == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToUpper(doi), "DOI:") {
			doi = "DOI:" + doi
		}
		ids = append(ids, doi)
	}
	return ids
}

// complete converts p, rejecting candidates with an empty field or a
// publication date that is not YYYY-MM-DD.
func complete(p Paper) (models.Recommendation, bool) {
	if p.Title == "" || len(p.Authors) == 0 || p.PublicationDate == "" || p.Abstract == "" {
		return models.Recommendation{}, false
	}
	date, ok := models.FormatLongDate(p.PublicationDate)
	if !ok {
		return models.Recommendation{}, false
	}
	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		authors = append(authors, a.Name)
	}
	rec := models.Recommendation{
		Title:    p.Title,
		Authors:  authors,
		URL:      p.URL,
		Date:     date,
		Abstract: p.Abstract,
	}
	return rec, rec.Complete()
}

func dedupKey(p Paper, rec models.Recommendation) string {
	if p.PaperID != "" {
		return p.PaperID
	}
	return rec.URL
}
