package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/paperfeed/internal/arxiv"
	"github.com/starford/paperfeed/internal/recommender"
	"github.com/starford/paperfeed/internal/refresh"
	"github.com/starford/paperfeed/internal/scope"
	"github.com/starford/paperfeed/internal/secret"
	"github.com/starford/paperfeed/internal/session"
	"github.com/starford/paperfeed/internal/storage"
	"github.com/starford/paperfeed/internal/userdb"
	"github.com/starford/paperfeed/internal/zotero"
)

var errConfigRequired = errors.New("config is required")

func newLogger(level slog.Level, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// core holds the components shared by the server, the MCP server and the
// one-shot refresh command.
type core struct {
	cfg    *Config
	logger *slog.Logger

	fs    *storage.FS
	creds *storage.Credentials
	files *scope.FileBacked
	orch  *refresh.Orchestrator
	arxiv *arxiv.Service
}

func newCore(app *application, logger *slog.Logger, refreshOpts ...refresh.Option) (*core, error) {
	cfg := app.config

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	fs, err := storage.NewFS(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	creds := storage.NewCredentials(fs)

	zc := zotero.NewClient(zotero.Config{
		BaseURL: cfg.Zotero.BaseURL,
		Timeout: cfg.Zotero.Timeout,
	}, logger, zotero.WithHTTPClient(app.httpClient))
	rc := recommender.NewClient(recommender.Config{
		BaseURL: cfg.SemanticScholar.BaseURL,
		Timeout: cfg.SemanticScholar.Timeout,
	}, logger, recommender.WithHTTPClient(app.httpClient))

	opts := append([]refresh.Option{
		refresh.WithClock(app.now),
		refresh.WithBackendLabel(cfg.Storage.Backend),
	}, refreshOpts...)
	orch := refresh.New(
		zotero.NewFetcher(zc, cfg.Zotero.Delay, logger),
		recommender.NewFetcher(rc, cfg.SemanticScholar.Delay, cfg.SemanticScholar.MaxAttempts, logger),
		refresh.Config{
			SeedPapers:      cfg.Refresh.SeedPapers,
			Recommendations: cfg.Refresh.Recommendations,
			PoolMultiplier:  cfg.Refresh.PoolMultiplier,
		},
		logger, opts...)

	c := &core{
		cfg:    cfg,
		logger: logger,
		fs:     fs,
		creds:  creds,
		files:  scope.NewFileBacked(creds, storage.NewStateFiles(fs), cfg.Admin.Key()),
		orch:   orch,
	}

	if cfg.Arxiv.Enabled {
		ac := arxiv.NewClient(arxiv.Config{
			BaseURL:  cfg.Arxiv.BaseURL,
			Timeout:  cfg.Arxiv.Timeout,
			Interval: cfg.Arxiv.RateLimit,
		}, arxiv.WithHTTPClient(app.httpClient))
		c.arxiv = arxiv.NewService(ac, cfg.Arxiv.CacheTTL, cfg.Arxiv.MaxResults, logger,
			arxiv.WithClock(app.now))
	}
	return c, nil
}

// encryptor returns nil when no encryption key is configured.
func (c *core) encryptor() (*secret.Encryptor, error) {
	if c.cfg.Encryption.Key == "" {
		return nil, nil
	}
	enc, err := secret.NewEncryptor(c.cfg.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("init encryption: %w", err)
	}
	return enc, nil
}

// backends holds what the configured storage backend adds on top of core.
type backends struct {
	resolver scope.Resolver
	sessions *session.Manager
	users    *userdb.DB
	tokens   *scope.FeedTokens
	closers  []io.Closer
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i].Close()
	}
}

func (c *core) newBackends() (*backends, error) {
	cfg := c.cfg
	b := &backends{resolver: c.files}

	enc, err := c.encryptor()
	if err != nil {
		return nil, err
	}
	if enc != nil {
		b.tokens = scope.NewFeedTokens(enc, cfg.Admin.Key())
	}

	if cfg.Storage.Backend == BackendFile {
		return b, nil
	}

	store, err := session.Open(cfg.Sessions.Path, cfg.Sessions.InMemory, cfg.Sessions.TTL)
	if err != nil {
		return nil, fmt.Errorf("init sessions: %w", err)
	}
	b.closers = append(b.closers, store)
	b.sessions = session.NewManager(store, cfg.Sessions.CookieName, cfg.Sessions.Secure, cfg.Sessions.TTL)
	b.resolver = scope.NewSessionBacked(b.sessions, cfg.Admin.Key())

	if cfg.Storage.Backend == BackendDatabase {
		users, err := userdb.Open(cfg.SQLite.Path, enc)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("init user db: %w", err)
		}
		b.closers = append(b.closers, users)
		b.users = users
		b.resolver = scope.NewUserRecordBacked(b.sessions, users, cfg.Admin.Key())
	}
	return b, nil
}
