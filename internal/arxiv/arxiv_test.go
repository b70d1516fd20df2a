package arxiv

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <id>http://arxiv.org/api/x</id>
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <published>2024-01-02T18:00:00Z</published>
    <updated>2024-01-02T18:00:00Z</updated>
    <title>Scaling Laws
      for Things</title>
    <summary>  We study things.  </summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v1" rel="related" type="application/pdf"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
    <category term="stat.ML" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
</feed>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		keywords string
		want     string
	}{
		{"empty", "", BaseQuery},
		{"only separators", " , ,", BaseQuery},
		{"single", "diffusion", BaseQuery + ` AND ((ti:"diffusion" OR abs:"diffusion"))`},
		{
			"multiple trimmed",
			" graph neural network , attention",
			BaseQuery + ` AND ((ti:"graph neural network" OR abs:"graph neural network") AND (ti:"attention" OR abs:"attention"))`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.keywords))
		})
	}
}

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/query", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, BaseQuery, q.Get("search_query"))
		assert.Equal(t, "0", q.Get("start"))
		assert.Equal(t, "25", q.Get("max_results"))
		assert.Equal(t, "submittedDate", q.Get("sortBy"))
		assert.Equal(t, "descending", q.Get("sortOrder"))
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = io.WriteString(w, sampleFeed)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	papers, err := c.Search(context.Background(), BaseQuery, 25)
	require.NoError(t, err)
	require.Len(t, papers, 1)

	p := papers[0]
	assert.Equal(t, "Scaling Laws for Things", p.Title)
	assert.Equal(t, "We study things.", p.Abstract)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, p.Authors)
	assert.Equal(t, "http://arxiv.org/pdf/2401.00001v1", p.PDFURL)
	assert.Equal(t, "2024-01-02", p.Published)
	assert.Equal(t, "http://arxiv.org/abs/2401.00001v1", p.ID)
	assert.Equal(t, []string{"cs.LG", "stat.ML"}, p.Categories)
}

func TestClient_Search_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Search(context.Background(), BaseQuery, 10)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode())
}

type fakeSearcher struct {
	calls  atomic.Int32
	papers []Paper
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int) ([]Paper, error) {
	f.calls.Add(1)
	return f.papers, f.err
}

func TestService_Papers_CacheLifecycle(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	fs := &fakeSearcher{papers: []Paper{{Title: "A"}, {Title: "B"}, {Title: "C"}}}
	svc := NewService(fs, time.Hour, 100, testLogger(), WithClock(clock))

	res := svc.Papers(context.Background(), "")
	assert.Equal(t, CacheFresh, res.CacheStatus, "a successful first fetch fills the cache")
	require.NotNil(t, res.CacheAge)
	assert.Equal(t, 0.0, *res.CacheAge)
	assert.Len(t, res.Papers, 3)
	assert.Equal(t, 100, res.TotalSearched)
	assert.Equal(t, 3.0, res.MatchPercentage)
	assert.Equal(t, BaseQuery, res.SearchQuery)

	now = now.Add(30 * time.Minute)
	res = svc.Papers(context.Background(), "")
	assert.Equal(t, CacheFresh, res.CacheStatus)
	require.NotNil(t, res.CacheAge)
	assert.Equal(t, 1800.0, *res.CacheAge)
	assert.Equal(t, int32(1), fs.calls.Load())

	now = now.Add(time.Hour)
	fs.papers = []Paper{{Title: "D"}}
	res = svc.Papers(context.Background(), "")
	assert.Equal(t, CacheFresh, res.CacheStatus, "an expired entry is refetched")
	assert.Equal(t, 0.0, *res.CacheAge)
	assert.Equal(t, int32(2), fs.calls.Load())
	require.Len(t, res.Papers, 1)
	assert.Equal(t, "D", res.Papers[0].Title)
}

func TestService_Papers_FallsBackToExpiredEntry(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	fs := &fakeSearcher{papers: []Paper{{Title: "A"}}}
	svc := NewService(fs, time.Hour, 100, testLogger(), WithClock(func() time.Time { return now }))

	svc.Papers(context.Background(), "rl")
	now = now.Add(2 * time.Hour)
	fs.err = errors.New("boom")

	res := svc.Papers(context.Background(), "rl")
	assert.Equal(t, CacheExpired, res.CacheStatus)
	require.NotNil(t, res.CacheAge)
	assert.Equal(t, 7200.0, *res.CacheAge)
	require.Len(t, res.Papers, 1)
	assert.Equal(t, "A", res.Papers[0].Title)
}

func TestService_Papers_ErrorWithoutCache(t *testing.T) {
	fs := &fakeSearcher{err: errors.New("boom")}
	svc := NewService(fs, 0, 0, testLogger())

	res := svc.Papers(context.Background(), "x")
	assert.Equal(t, CacheInitial, res.CacheStatus)
	assert.Nil(t, res.CacheAge)
	assert.NotNil(t, res.Papers)
	assert.Empty(t, res.Papers)
	assert.Equal(t, 0.0, res.MatchPercentage)
	assert.Equal(t, DefaultMaxResults, res.TotalSearched)
}

func TestMatchPercentage(t *testing.T) {
	assert.Equal(t, 33.3, matchPercentage(1, 3))
	assert.Equal(t, 66.7, matchPercentage(2, 3))
	assert.Equal(t, 0.0, matchPercentage(5, 0))
}
