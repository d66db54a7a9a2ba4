package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/ensemble"
	"github.com/2beens/gymstats-predictor/internal/gymstats/models"
	"github.com/2beens/gymstats-predictor/internal/gymstats/snapshots"
	"github.com/2beens/gymstats-predictor/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

type snapshot struct {
	SavedAt  time.Time         `json:"savedAt"`
	Level    constraints.Level `json:"userLevel"`
	Ensemble json.RawMessage   `json:"ensemble"`
}

// SaveSnapshot persists the trained ensemble in the snapshot store.
func (p *Pipeline) SaveSnapshot(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "pipeline.snapshot.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if p.params.Snapshots == nil {
		return ErrSnapshotsMissing
	}

	p.mu.RLock()
	e, level := p.ensemble, p.level
	p.mu.RUnlock()
	if e == nil {
		return ErrNoTrainedModel
	}

	blob, err := e.Save()
	if err != nil {
		if errors.Is(err, models.ErrNotTrained) {
			return ErrNoTrainedModel
		}
		return fmt.Errorf("save ensemble: %w", err)
	}

	data, err := json.Marshal(snapshot{
		SavedAt:  p.params.Clock(),
		Level:    level,
		Ensemble: blob,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return p.params.Snapshots.Save(ctx, EnsembleSnapshotKey, data)
}

// LoadSnapshot restores a saved ensemble and makes the pipeline ready in
// ensemble mode. Weights recalibrated after the snapshot was taken win over
// the saved ones.
func (p *Pipeline) LoadSnapshot(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "pipeline.snapshot.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if p.params.Snapshots == nil {
		return ErrSnapshotsMissing
	}
	switch p.State() {
	case StateClosed:
		return ErrClosed
	case StateInitializing:
		return ErrInitializing
	}

	data, err := p.params.Snapshots.Load(ctx, EnsembleSnapshotKey)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	e := p.params.NewEnsemble(ensemble.DefaultConfig())
	if err := e.Load(s.Ensemble); err != nil {
		return err
	}

	if p.weights != nil {
		state, err := p.weights.Load(ctx)
		switch {
		case err == nil && state.Timestamp.After(s.SavedAt):
			if err := e.SetWeights(state.Weights); err != nil {
				log.Warnf("pipeline: apply recalibrated weights %s: %s", state.Version, err)
			}
		case err != nil && !errors.Is(err, snapshots.ErrSnapshotNotFound):
			log.Warnf("pipeline: load recalibrated weights: %s", err)
		}
	}

	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		log.Warnf("pipeline: closed while loading the snapshot from %s, snapshot dropped", s.SavedAt.Format(time.RFC3339))
		return ErrClosed
	}
	p.ensemble = e
	p.mode = ModeEnsemble
	p.level = s.Level
	p.lastTraining = s.SavedAt
	p.trainingProgress = 100
	p.state = StateReady
	p.mu.Unlock()
	p.ClearCaches()

	log.Infof("pipeline: ensemble snapshot from %s loaded", s.SavedAt.Format(time.RFC3339))
	return nil
}
