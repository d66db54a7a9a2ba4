package learning_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/ensemble"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/telemetry/metrics"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func benchVector(current float64) features.Vector {
	fv := features.Default("bench press", constraints.LevelIntermediate)
	fv.CurrentWeight = current
	fv.MaxWeight = current
	fv.AvgWeight = current - 2
	return fv
}

func TestCollector_ScenarioE(t *testing.T) {
	gofakeit.Seed(11)
	clock := newFakeClock()
	c := learning.NewCollector(learning.Params{Clock: clock.Now})
	ctx := context.Background()

	ids := make(map[string]struct{})
	var ordered []string
	for i := 0; i < 1000; i++ {
		current := float64(gofakeit.IntRange(40, 160))
		id := c.TrackPrediction("bench press", learning.Tracked{NextWeight: current + 2.5, Confidence: 70}, benchVector(current), constraints.LevelIntermediate)
		require.NotEmpty(t, id)
		ids[id] = struct{}{}
		ordered = append(ordered, id)
	}
	assert.Len(t, ids, 1000)

	for i := 0; i < 500; i++ {
		ok := c.CollectFeedback(ctx, ordered[i], learning.FeedbackDifficultyRating, learning.FeedbackData{Rating: float64(gofakeit.IntRange(1, 5))})
		require.True(t, ok)
	}

	report := c.MetricsReport()
	assert.Equal(t, 1000, report.Summary.TotalPredictions)
	// difficulty ratings never resolve a prediction
	assert.Zero(t, report.Summary.FeedbackRate)
	assert.Zero(t, report.Summary.AverageAccuracy)
	assert.Zero(t, report.Summary.CalibrationCount)
	assert.Empty(t, report.ModelPerformance)

	assert.Len(t, c.Feedback(), 500)
	assert.Equal(t, 500, c.PendingFeedback())
}

func TestCollector_UnknownPrediction(t *testing.T) {
	c := learning.NewCollector(learning.Params{})
	ok := c.CollectFeedback(context.Background(), "unknown", learning.FeedbackActualPerformance, learning.FeedbackData{ActualWeight: 80})
	assert.False(t, ok)
	assert.Empty(t, c.Feedback())
	assert.Zero(t, c.PendingFeedback())
}

func TestCollector_ActualPerformance(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	c := learning.NewCollector(learning.Params{Metrics: metricsManager})
	ctx := context.Background()

	id := c.TrackPrediction("bench press", learning.Tracked{NextWeight: 82.5}, benchVector(80), constraints.LevelIntermediate)
	require.True(t, c.CollectFeedback(ctx, id, learning.FeedbackActualPerformance, learning.FeedbackData{ActualWeight: 80, ActualReps: 8}))

	record, ok := c.Record(id)
	require.True(t, ok)
	require.True(t, record.FeedbackReceived)
	require.NotNil(t, record.AccuracyScore)
	assert.InDelta(t, 1-2.5/82.5, *record.AccuracyScore, 1e-9)
	require.NotNil(t, record.ActualOutcome)
	assert.Equal(t, 8, record.ActualOutcome.ActualReps)

	// the transition happens once
	require.True(t, c.CollectFeedback(ctx, id, learning.FeedbackActualPerformance, learning.FeedbackData{ActualWeight: 60}))
	record, _ = c.Record(id)
	assert.InDelta(t, 1-2.5/82.5, *record.AccuracyScore, 1e-9)
	assert.Len(t, c.Feedback(), 2)

	report := c.MetricsReport()
	assert.Equal(t, 100.0, report.Summary.FeedbackRate)
	assert.Equal(t, 97.0, report.Summary.AverageAccuracy)
	perf := report.ModelPerformance["bench press"]
	assert.Equal(t, 1, perf.TotalPredictions)
	assert.Equal(t, 1, perf.AccurateCount)
	assert.InDelta(t, 0.9697, perf.AverageAccuracy, 1e-4)

	assert.Equal(t, 2.0, testutil.ToFloat64(metricsManager.CounterFeedback.WithLabelValues(string(learning.FeedbackActualPerformance))))

	// a prediction without a weight is never scored
	zero := c.TrackPrediction("bench press", learning.Tracked{}, benchVector(80), constraints.LevelIntermediate)
	require.True(t, c.CollectFeedback(ctx, zero, learning.FeedbackActualPerformance, learning.FeedbackData{ActualWeight: 80}))
	record, _ = c.Record(zero)
	assert.False(t, record.FeedbackReceived)
	assert.Nil(t, record.AccuracyScore)
}

func TestCollector_Retention(t *testing.T) {
	clock := newFakeClock()
	c := learning.NewCollector(learning.Params{Clock: clock.Now})
	ctx := context.Background()

	old := c.TrackPrediction("squat", learning.Tracked{NextWeight: 100}, benchVector(100), constraints.LevelBeginner)
	require.True(t, c.CollectFeedback(ctx, old, learning.FeedbackDifficultyRating, learning.FeedbackData{Rating: 3}))

	clock.Advance(91 * 24 * time.Hour)
	fresh := c.TrackPrediction("squat", learning.Tracked{NextWeight: 102.5}, benchVector(100), constraints.LevelBeginner)

	_, ok := c.Record(old)
	assert.False(t, ok)
	_, ok = c.Record(fresh)
	assert.True(t, ok)
	assert.Empty(t, c.Feedback())
	assert.False(t, c.CollectFeedback(ctx, old, learning.FeedbackDifficultyRating, learning.FeedbackData{Rating: 3}))
	assert.Equal(t, 1, c.MetricsReport().Summary.TotalPredictions)
}

func TestCollector_UserComplaintWithoutData(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	c := learning.NewCollector(learning.Params{Metrics: metricsManager})
	ctx := context.Background()

	id := c.TrackPrediction("row", learning.Tracked{NextWeight: 60}, benchVector(57.5), constraints.LevelIntermediate)
	for i := 0; i < 3; i++ {
		require.True(t, c.CollectFeedback(ctx, id, learning.FeedbackUserSatisfaction, learning.FeedbackData{Rating: 2}))
	}

	calibrations := c.Calibrations()
	require.Len(t, calibrations, 1)
	assert.True(t, calibrations[0].Reasons.UserComplaint)
	assert.Equal(t, learning.CalibrationSkippedInsufficient, calibrations[0].Status)
	assert.Equal(t, 3, calibrations[0].FeedbackCount)
	// nothing was learned, the feedback stays pending
	assert.Equal(t, 3, c.PendingFeedback())
	assert.Equal(t, 1.0, testutil.ToFloat64(metricsManager.CounterRecalibrations.WithLabelValues(string(learning.CalibrationSkippedInsufficient))))
}

// resolved tracks n predictions and reports the actual weight of each one.
func resolved(t *testing.T, c *learning.Collector, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		current := 60 + 2.5*float64(i)
		id := c.TrackPrediction("bench press", learning.Tracked{NextWeight: current + 2.5}, benchVector(current), constraints.LevelIntermediate)
		require.True(t, c.CollectFeedback(ctx, id, learning.FeedbackActualPerformance, learning.FeedbackData{ActualWeight: current + 2.5}))
	}
}

func TestCollector_RecalibrationAfterInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	clock := newFakeClock()
	metricsManager := metrics.NewTestManager()

	var saved []byte
	store.EXPECT().
		Save(gomock.Any(), learning.WeightsKey, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, blob []byte) error {
			saved = blob
			return nil
		})

	var applied []ensemble.Weights
	c := learning.NewCollector(learning.Params{
		Weights:        learning.NewWeightsStore(store),
		OnRecalibrated: func(w ensemble.Weights) { applied = append(applied, w) },
		Metrics:        metricsManager,
		Clock:          clock.Now,
	})

	resolved(t, c, 10)
	require.Empty(t, c.Calibrations())
	require.Equal(t, 10, c.PendingFeedback())

	clock.Advance(8 * 24 * time.Hour)
	resolved(t, c, 1)

	calibrations := c.Calibrations()
	require.Len(t, calibrations, 1)
	cal := calibrations[0]
	assert.Equal(t, learning.CalibrationCompleted, cal.Status)
	assert.True(t, cal.Reasons.TimeInterval)
	assert.Equal(t, 11, cal.Samples)
	assert.Equal(t, 11, cal.FeedbackCount)
	assert.Empty(t, cal.Error)
	assert.Len(t, cal.Validation, 3)
	assert.Greater(t, cal.AccuracyAfter, 0.0)
	assert.LessOrEqual(t, cal.AccuracyAfter, 1.0)

	require.NotNil(t, cal.Weights)
	assert.InDelta(t, 1.0, cal.Weights.Sum(), 1e-9)
	require.Len(t, applied, 1)
	assert.Equal(t, *cal.Weights, applied[0])
	assert.NotEmpty(t, saved)

	assert.Zero(t, c.PendingFeedback())
	for _, fb := range c.Feedback() {
		assert.True(t, fb.Processed)
	}
	assert.Equal(t, clock.Now(), c.MetricsReport().Summary.LastRecalibration)
	assert.Equal(t, 1.0, testutil.ToFloat64(metricsManager.CounterRecalibrations.WithLabelValues(string(learning.CalibrationCompleted))))
}

func TestCollector_RecalibrationSaveFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	store.EXPECT().Save(gomock.Any(), learning.WeightsKey, gomock.Any()).Return(errors.New("disk full"))

	clock := newFakeClock()
	called := false
	c := learning.NewCollector(learning.Params{
		Weights:        learning.NewWeightsStore(store),
		OnRecalibrated: func(ensemble.Weights) { called = true },
		Clock:          clock.Now,
	})
	resolved(t, c, 6)
	before := c.MetricsReport().Summary.LastRecalibration

	cal := c.Recalibrate(context.Background())
	assert.Equal(t, learning.CalibrationFailed, cal.Status)
	assert.True(t, cal.Reasons.Manual)
	assert.Contains(t, cal.Error, "disk full")
	assert.Nil(t, cal.Weights)
	assert.False(t, called)
	assert.Equal(t, 6, c.PendingFeedback())
	assert.Equal(t, before, c.MetricsReport().Summary.LastRecalibration)
	assert.Len(t, c.MetricsReport().RecentCalibrations, 1)
}

func TestCollector_ManualRecalibrationWithoutData(t *testing.T) {
	c := learning.NewCollector(learning.Params{})
	cal := c.Recalibrate(context.Background())
	assert.Equal(t, learning.CalibrationSkippedInsufficient, cal.Status)
	assert.True(t, cal.Reasons.Manual)
	assert.Zero(t, cal.Samples)
	assert.Len(t, c.Calibrations(), 1)
}

func TestCollector_RecentCalibrationsCapped(t *testing.T) {
	c := learning.NewCollector(learning.Params{})
	for i := 0; i < 7; i++ {
		c.Recalibrate(context.Background())
	}
	report := c.MetricsReport()
	assert.Equal(t, 7, report.Summary.CalibrationCount)
	assert.Len(t, report.RecentCalibrations, 5)
}
