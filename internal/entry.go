// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/paperfeed/internal/api"
	"github.com/starford/paperfeed/internal/mcpserver"
	"github.com/starford/paperfeed/internal/refresh"
	"github.com/starford/paperfeed/internal/secret"
	"github.com/starford/paperfeed/internal/sse"
	"github.com/starford/paperfeed/internal/storage"
	"github.com/starford/paperfeed/internal/userdb"
)

// Run starts the web server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(cfg.App.LogLevel, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("data_dir", cfg.Storage.Dir),
		slog.Bool("feed_enabled", cfg.Feed.Enabled),
		slog.Bool("arxiv_enabled", cfg.Arxiv.Enabled),
		slog.Bool("admin_mode", cfg.Admin.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := newCore(app, logger, refresh.WithOnRefresh(func(_ string, r refresh.Result) {
		broker.PublishRefresh(sse.RefreshEvent{
			Backend:             cfg.Storage.Backend,
			LastRefresh:         r.LastRefresh.String(),
			SeedCount:           len(r.SeedPapers),
			RecommendationCount: len(r.Recommendations),
		})
	}))
	if err != nil {
		return err
	}

	b, err := c.newBackends()
	if err != nil {
		return err
	}
	defer b.Close()

	deps := api.Deps{
		Resolver:  b.resolver,
		Refresher: c.orch,
		Sessions:  b.sessions,
		Users:     b.users,
		Tokens:    b.tokens,
		Events:    broker,
	}
	if c.arxiv != nil {
		deps.Arxiv = c.arxiv
	}
	h := api.NewHandler(deps, api.Config{
		Feed: api.FeedConfig{
			Enabled:     cfg.Feed.Enabled,
			Title:       cfg.Feed.Title,
			Description: cfg.Feed.Description,
			PublicURL:   cfg.Feed.PublicURL,
		},
		RateLimitRequests: cfg.App.HTTP.RateLimit.Requests,
		RateLimitWindow:   cfg.App.HTTP.RateLimit.Window,
		CORSOrigins:       cfg.App.HTTP.CORSOrigins,
		AdminKeyManaged:   cfg.Admin.Key() != "",
	}, logger)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Pages, API and feed.
	r.Mount("/", api.NewRouter(h))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch api_keys.json for external edits in file mode.
	if cfg.Storage.Backend == BackendFile {
		g.Go(func() error {
			err := storage.WatchCredentials(gCtx, c.creds, c.fs.Root(), logger, broker.PublishCredentialsChanged)
			if err != nil {
				logger.Warn("credentials watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Ends open event streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio for the shared data directory.
// Logs go to stderr since stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config.App.LogLevel, os.Stderr)

	c, err := newCore(app, logger)
	if err != nil {
		return err
	}

	var search mcpserver.PaperSearcher
	if c.arxiv != nil {
		search = c.arxiv
	}
	logger.Info("MCP server starting", slog.String("data_dir", c.fs.Root()))
	return mcpserver.New(c.files, c.orch, search, app.version).ServeStdio()
}

// refreshOutput is what RefreshOnce prints.
type refreshOutput struct {
	LastRefresh     string `json:"last_refresh"`
	SeedPapers      any    `json:"seed_papers"`
	Recommendations any    `json:"recommendations"`
}

// RefreshOnce regenerates the recommendations of the shared data
// directory and writes the result to w as JSON.
func RefreshOnce(ctx context.Context, w io.Writer, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config.App.LogLevel, os.Stderr)

	c, err := newCore(app, logger)
	if err != nil {
		return err
	}
	sc, err := c.files.Scope()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if !sc.Credentials.Complete() {
		return fmt.Errorf("API keys are not configured in %s", storage.CredentialsFile)
	}

	res := c.orch.Refresh(ctx, sc.Credentials, sc.Store)
	out, err := json.MarshalIndent(refreshOutput{
		LastRefresh:     res.LastRefresh.String(),
		SeedPapers:      res.SeedPapers,
		Recommendations: res.Recommendations,
	}, "", "    ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// WipeDB drops and recreates the user table.
func WipeDB(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config.App.LogLevel, os.Stderr)

	var cipher userdb.Cipher
	if key := app.config.Encryption.Key; key != "" {
		enc, err := secret.NewEncryptor(key)
		if err != nil {
			return fmt.Errorf("init encryption: %w", err)
		}
		cipher = enc
	}

	db, err := userdb.Open(app.config.SQLite.Path, cipher)
	if err != nil {
		return fmt.Errorf("open user db: %w", err)
	}
	defer db.Close()

	if err := db.Wipe(); err != nil {
		return fmt.Errorf("wipe user db: %w", err)
	}
	logger.Info("user database wiped", slog.String("path", app.config.SQLite.Path))
	return nil
}
