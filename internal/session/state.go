package session

import (
	"context"
	"fmt"

	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/refresh"
)

// StateStore is the refresh state of one session.
type StateStore struct {
	store *Store
	id    string
}

var _ refresh.StateStore = (*StateStore)(nil)

// NewStateStore binds the refresh state of session id.
func NewStateStore(store *Store, id string) *StateStore {
	return &StateStore{store: store, id: id}
}

// Key implements refresh.StateStore.
func (s *StateStore) Key() string { return "session:" + s.id }

// LastRefresh implements refresh.StateStore.
func (s *StateStore) LastRefresh(_ context.Context) (models.Day, error) {
	var raw string
	if err := s.store.Get(s.id, FieldLastRefresh, &raw); err != nil {
		return models.Day{}, err
	}
	day, err := models.ParseDay(raw)
	if err != nil {
		return models.Day{}, fmt.Errorf("session: %w", err)
	}
	return day, nil
}

// Load implements refresh.StateStore.
func (s *StateStore) Load(ctx context.Context) (*models.RefreshState, error) {
	day, err := s.LastRefresh(ctx)
	if err != nil {
		return nil, err
	}
	st := &models.RefreshState{LastRefresh: day}
	if err := s.store.Get(s.id, FieldSeedPapers, &st.SeedPapers); err != nil {
		return nil, err
	}
	if err := s.store.Get(s.id, FieldRecommendations, &st.Recommendations); err != nil {
		return nil, err
	}
	return st, nil
}

// Save implements refresh.StateStore.
func (s *StateStore) Save(_ context.Context, st *models.RefreshState) error {
	seeds := st.SeedPapers
	if seeds == nil {
		seeds = []models.Paper{}
	}
	recs := st.Recommendations
	if recs == nil {
		recs = []models.Recommendation{}
	}
	return s.store.SetMany(s.id, map[string]any{
		FieldLastRefresh:     st.LastRefresh.String(),
		FieldSeedPapers:      seeds,
		FieldRecommendations: recs,
	})
}
