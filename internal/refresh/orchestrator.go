// Package refresh decides when the daily recommendations must be recomputed
// and runs the fetch, sample, recommend, persist cycle.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/paperfeed/internal/metrics"
	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/sampler"
)

// SourceFetcher returns recent library papers.
type SourceFetcher interface {
	FetchRecent(ctx context.Context, limit int, creds models.Credentials) []models.Paper
}

// RecommendationFetcher returns complete recommendations for seeds.
type RecommendationFetcher interface {
	Recommend(ctx context.Context, seeds []models.Paper, target int, creds models.Credentials) []models.Recommendation
}

// Config holds the refresh sizes.
type Config struct {
	SeedPapers      int
	Recommendations int
	PoolMultiplier  int
}

// Result is what the orchestrator hands to presentation code. Both lists
// are empty together when no consistent state is available.
type Result struct {
	SeedPapers      []models.Paper
	Recommendations []models.Recommendation
	// LastRefresh is the zero Day when no refresh is known.
	LastRefresh models.Day
	Regenerated bool
}

// Ready reports whether the result carries data.
func (r Result) Ready() bool {
	return len(r.SeedPapers) > 0 && len(r.Recommendations) > 0
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used to determine "today".
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithOnRefresh registers a callback invoked after every regeneration.
func WithOnRefresh(fn func(key string, r Result)) Option {
	return func(o *Orchestrator) { o.onRefresh = fn }
}

// WithBackendLabel sets the metrics label of the storage backend.
func WithBackendLabel(label string) Option {
	return func(o *Orchestrator) { o.backend = label }
}

// Orchestrator serves today's refresh state, regenerating it when stale.
type Orchestrator struct {
	source    SourceFetcher
	recs      RecommendationFetcher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	onRefresh func(key string, r Result)
	backend   string
	group     singleflight.Group
}

// New creates an Orchestrator.
func New(source SourceFetcher, recs RecommendationFetcher, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.SeedPapers <= 0 {
		cfg.SeedPapers = 10
	}
	if cfg.Recommendations <= 0 {
		cfg.Recommendations = 3
	}
	if cfg.PoolMultiplier <= 0 {
		cfg.PoolMultiplier = 10
	}
	o := &Orchestrator{
		source:  source,
		recs:    recs,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		backend: "unknown",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Today returns the current local calendar day.
func (o *Orchestrator) Today() models.Day {
	return models.DayOf(o.now())
}

// Get returns today's seeds and recommendations for the scope. A state
// saved today with both lists populated is returned without any network
// call; anything else triggers a regeneration. Get never fails.
func (o *Orchestrator) Get(ctx context.Context, creds models.Credentials, store StateStore) Result {
	today := o.Today()

	last, err := store.LastRefresh(ctx)
	if err != nil {
		o.logger.Debug("refresh: no usable last refresh date",
			slog.String("scope", store.Key()),
			slog.String("error", err.Error()))
	}

	if err == nil && !last.IsZero() && !last.Before(today) {
		st, loadErr := store.Load(ctx)
		switch {
		case loadErr != nil:
			o.logger.Warn("refresh: load failed, regenerating",
				slog.String("scope", store.Key()),
				slog.String("error", loadErr.Error()))
		case !st.Ready():
			o.logger.Info("refresh: persisted state is empty, regenerating",
				slog.String("scope", store.Key()))
		default:
			metrics.RefreshTotal.WithLabelValues(o.backend, "cached").Inc()
			return Result{
				SeedPapers:      st.SeedPapers,
				Recommendations: st.Recommendations,
				LastRefresh:     st.LastRefresh,
			}
		}
	}

	known := models.Day{}
	if err == nil {
		known = last
	}
	return o.regenerate(ctx, creds, store, today, known)
}

// Refresh regenerates the scope's state regardless of staleness.
func (o *Orchestrator) Refresh(ctx context.Context, creds models.Credentials, store StateStore) Result {
	known, err := store.LastRefresh(ctx)
	if err != nil {
		known = models.Day{}
	}
	return o.regenerate(ctx, creds, store, o.Today(), known)
}

func (o *Orchestrator) regenerate(ctx context.Context, creds models.Credentials, store StateStore, today, known models.Day) Result {
	key := store.Key() + "@" + today.String()
	// Joined callers share this run, so it must outlive the caller that started it.
	shared := context.WithoutCancel(ctx)
	v, _, joined := o.group.Do(key, func() (any, error) {
		return o.run(shared, creds, store, today, known), nil
	})
	res := v.(Result)
	if joined {
		o.logger.Debug("refresh: joined in-flight regeneration", slog.String("scope", store.Key()))
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, creds models.Credentials, store StateStore, today, known models.Day) Result {
	o.logger.Info("refresh: regenerating recommendations",
		slog.String("scope", store.Key()),
		slog.String("day", today.String()))

	pool := o.source.FetchRecent(ctx, o.cfg.SeedPapers*o.cfg.PoolMultiplier, creds)
	seeds := sampler.Sample(pool, o.cfg.SeedPapers, today)
	recs := o.recs.Recommend(ctx, seeds, o.cfg.Recommendations, creds)

	st := &models.RefreshState{
		LastRefresh:     today,
		SeedPapers:      seeds,
		Recommendations: recs,
	}
	last := known
	if err := store.Save(ctx, st); err != nil {
		metrics.RefreshSaveErrors.WithLabelValues(o.backend).Inc()
		o.logger.Error("refresh: save failed",
			slog.String("scope", store.Key()),
			slog.String("error", err.Error()))
	} else {
		last = today
	}

	res := Result{
		SeedPapers:      seeds,
		Recommendations: recs,
		LastRefresh:     last,
		Regenerated:     true,
	}
	if !res.Ready() {
		metrics.RefreshTotal.WithLabelValues(o.backend, "not_ready").Inc()
		o.logger.Warn("refresh: incomplete result, reporting not ready",
			slog.String("scope", store.Key()),
			slog.Int("seed_papers", len(seeds)),
			slog.Int("recommendations", len(recs)))
		res.SeedPapers = []models.Paper{}
		res.Recommendations = []models.Recommendation{}
		return res
	}

	metrics.RefreshTotal.WithLabelValues(o.backend, "regenerated").Inc()
	if o.onRefresh != nil {
		o.onRefresh(store.Key(), res)
	}
	return res
}
