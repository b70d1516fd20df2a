package storage

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/refresh"
)

// File names of the flat-file refresh state.
const (
	LastRefreshFile     = "last_refresh.json"
	SeedPapersFile      = "seed_papers.json"
	RecommendationsFile = "recommendations.json"
)

type lastRefreshDoc struct {
	LastRefresh string `json:"last_refresh"`
}

// StateFiles stores the refresh state as three independent JSON files.
type StateFiles struct {
	fs Provider
}

var _ refresh.StateStore = (*StateFiles)(nil)

// NewStateFiles creates a StateFiles store on top of fs.
func NewStateFiles(fs Provider) *StateFiles {
	return &StateFiles{fs: fs}
}

// Key implements refresh.StateStore.
func (s *StateFiles) Key() string { return "file:" + s.fs.Root() }

// LastRefresh implements refresh.StateStore.
func (s *StateFiles) LastRefresh(_ context.Context) (models.Day, error) {
	data, err := s.fs.Read(LastRefreshFile)
	if err != nil {
		return models.Day{}, err
	}
	var doc lastRefreshDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.Day{}, fmt.Errorf("storage: decode %s: %w", LastRefreshFile, err)
	}
	day, err := models.ParseDay(doc.LastRefresh)
	if err != nil {
		return models.Day{}, fmt.Errorf("storage: %s: %w", LastRefreshFile, err)
	}
	return day, nil
}

// Load implements refresh.StateStore. Any missing or corrupt file fails the load.
func (s *StateFiles) Load(ctx context.Context) (*models.RefreshState, error) {
	day, err := s.LastRefresh(ctx)
	if err != nil {
		return nil, err
	}
	st := &models.RefreshState{LastRefresh: day}
	if err := s.readJSON(SeedPapersFile, &st.SeedPapers); err != nil {
		return nil, err
	}
	if err := s.readJSON(RecommendationsFile, &st.Recommendations); err != nil {
		return nil, err
	}
	return st, nil
}

// Save implements refresh.StateStore. The date file is written last so an
// interrupted save leaves the state stale rather than half-fresh.
func (s *StateFiles) Save(_ context.Context, st *models.RefreshState) error {
	if err := s.writeJSON(SeedPapersFile, nonNil(st.SeedPapers)); err != nil {
		return err
	}
	if err := s.writeJSON(RecommendationsFile, nonNil(st.Recommendations)); err != nil {
		return err
	}
	return s.writeJSON(LastRefreshFile, lastRefreshDoc{LastRefresh: st.LastRefresh.String()})
}

func (s *StateFiles) readJSON(name string, v any) error {
	data, err := s.fs.Read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %s: %w", name, err)
	}
	return nil
}

func (s *StateFiles) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", name, err)
	}
	return s.fs.Write(name, data)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
