package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/ensemble"
	"github.com/2beens/gymstats-predictor/internal/gymstats/snapshots"

	"github.com/google/uuid"
)

const WeightsKey = "ensemble_weights"

// ModelState is what a recalibration leaves behind.
type ModelState struct {
	Timestamp  time.Time            `json:"timestamp"`
	Weights    ensemble.Weights     `json:"weights"`
	Validation map[string]FoldScore `json:"validationResults"`
	Version    string               `json:"version"`
}

// WeightsStore persists recalibrated ensemble weights in the snapshot store.
type WeightsStore struct {
	store snapshots.Store
}

func NewWeightsStore(store snapshots.Store) *WeightsStore {
	return &WeightsStore{
		store: store,
	}
}

func modelVersion(ts time.Time) string {
	return fmt.Sprintf("v%d.%s", ts.UnixMilli(), uuid.NewString()[:8])
}

func (s *WeightsStore) Save(ctx context.Context, state ModelState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal model state: %w", err)
	}
	return s.store.Save(ctx, WeightsKey, blob)
}

// Load returns snapshots.ErrSnapshotNotFound before the first recalibration.
func (s *WeightsStore) Load(ctx context.Context) (ModelState, error) {
	blob, err := s.store.Load(ctx, WeightsKey)
	if err != nil {
		return ModelState{}, err
	}
	var state ModelState
	if err := json.Unmarshal(blob, &state); err != nil {
		return ModelState{}, fmt.Errorf("unmarshal model state: %w", err)
	}
	return state, nil
}
