package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2beens/gymstats-predictor/internal/gymstats/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const workoutsJSON = `[
  {"date": "2024-01-01T18:00:00Z", "duration": 3600, "exercises": [
    {"name": "bench press", "sets": [{"weight": 60, "reps": 8}]}
  ]},
  {"date": "2024-01-08", "duration": "3500", "exercises": [
    {"name": "bench press", "sets": [{"weight": 62, "reps": 8}, {"weight": 55, "reps": 10}]}
  ]}
]`

func TestRun(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), strings.NewReader(workoutsJSON), &out, runOptions{})
	require.NoError(t, err)

	var got report
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, pipeline.InitFallback, got.Initialization.Status)
	require.Contains(t, got.Predictions, "bench press")

	pred := got.Predictions["bench press"]
	assert.Equal(t, pipeline.SourceFallback, pred.Source)
	assert.Equal(t, 62.0, pred.CurrentWeight)
	assert.Greater(t, pred.PredictedWeight, pred.CurrentWeight)
	assert.Equal(t, pipeline.ModeFallback, got.Metrics.Mode)
}

func TestRun_SingleExercise(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), strings.NewReader(workoutsJSON), &out, runOptions{Exercise: "bench press"})
	require.NoError(t, err)

	var got report
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Len(t, got.Predictions, 1)
}

func TestRun_BadInput(t *testing.T) {
	err := run(context.Background(), strings.NewReader("{not json"), &bytes.Buffer{}, runOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode workouts")
}
