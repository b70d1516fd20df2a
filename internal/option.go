package internal

import (
	"net/http"
	"time"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	now        func() time.Time
	httpClient *http.Client
	version    string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithClock overrides the time source that decides the refresh day.
func WithClock(now func() time.Time) Option {
	return func(a *application) {
		a.now = now
	}
}

// WithHTTPClient sets the HTTP client used for every upstream API.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *application) {
		a.httpClient = hc
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{now: time.Now, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errConfigRequired
	}
	return app, nil
}
