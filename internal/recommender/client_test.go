package recommender

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestClient_Recommend(t *testing.T) {
	t.Run("posts positive ids with fields and limit", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/recommendations/v1/papers", r.URL.Path)
			assert.Equal(t, Fields, r.URL.Query().Get("fields"))
			assert.Equal(t, "9", r.URL.Query().Get("limit"))
			assert.Equal(t, "s2-key", r.Header.Get("x-api-key"))

			var body request
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"DOI:10.1/a", "DOI:10.1/b"}, body.PositivePaperIDs)

			_, _ = w.Write([]byte(`{"recommendedPapers":[{"paperId":"p1","title":"T","authors":[{"name":"A"}],"url":"u","publicationDate":"2024-03-05","abstract":"x"}]}`))
		}))
		defer srv.Close()

		c := NewClient(Config{BaseURL: srv.URL}, discardLogger())
		resp, err := c.Recommend(context.Background(), "s2-key", []string{"DOI:10.1/a", "DOI:10.1/b"}, 9)
		require.NoError(t, err)
		require.Len(t, resp.RecommendedPapers, 1)
		assert.Equal(t, "p1", resp.RecommendedPapers[0].PaperID)
		assert.Equal(t, "A", resp.RecommendedPapers[0].Authors[0].Name)
	})

	t.Run("non-200 is an APIError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := NewClient(Config{BaseURL: srv.URL}, discardLogger())
		_, err := c.Recommend(context.Background(), "k", []string{"DOI:x"}, 3)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
		assert.Contains(t, apiErr.Body, "rate limited")
	})
}

func TestClient_Recommend_CancelledCallersKeepBreakerClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") == "1" {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
		_, _ = w.Write([]byte(`{"recommendedPapers":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, discardLogger())
	for i := 0; i < 6; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := c.Recommend(ctx, "k", []string{"DOI:x"}, 1)
		cancel()
		require.Error(t, err)
	}

	_, err := c.Recommend(context.Background(), "k", []string{"DOI:x"}, 3)
	assert.NoError(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{}, discardLogger())
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}
