//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/gymstats/pipeline"

	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) insertWorkouts(ctx context.Context, weeks int) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	for w := 0; w < weeks; w++ {
		day := start.AddDate(0, 0, 7*w)
		for i, row := range []struct {
			exerciseID  string
			muscleGroup string
			kilos       int
		}{
			{"squat", "legs", 80 + 2*w},
			{"bench press", "chest", 60 + w},
		} {
			_, err := s.dbPool.Exec(ctx, `
				INSERT INTO exercise (exercise_id, muscle_group, kilos, reps, metadata, created_at)
				VALUES ($1, $2, $3, $4, $5, $6);
			`, row.exerciseID, row.muscleGroup, row.kilos, 8, `{"env": "prod"}`, day.Add(time.Duration(i)*10*time.Minute))
			require.NoError(s.T(), err)
		}
	}

	// testing data never reaches the predictor
	_, err := s.dbPool.Exec(ctx, `
		INSERT INTO exercise (exercise_id, muscle_group, kilos, reps, metadata, created_at)
		VALUES ('deadlift', 'back', 500, 1, '{"env": "prod", "testing": "true"}', $1);
	`, start)
	require.NoError(s.T(), err)
}

func (s *IntegrationTestSuite) doRequest(ctx context.Context, method, path string, body any) (int, []byte) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, reqBody)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)
	return resp.StatusCode, respBytes
}

func (s *IntegrationTestSuite) TestPredictionsFlow() {
	ctx := context.Background()
	t := s.T()

	s.Run("predict before initialize", func() {
		status, _ := s.doRequest(ctx, http.MethodGet, "/predictions/squat", nil)
		require.Equal(t, http.StatusConflict, status)
	})

	s.insertWorkouts(ctx, 10)

	var initRes pipeline.InitResult
	s.Run("initialize", func() {
		status, body := s.doRequest(ctx, http.MethodPost, "/predictions/initialize", gymstats.InitializeRequest{
			UserID: "integration",
		})
		require.Equal(t, http.StatusOK, status, string(body))
		require.NoError(t, json.Unmarshal(body, &initRes))
		require.Contains(t, []pipeline.InitStatus{pipeline.InitTrained, pipeline.InitFallback}, initRes.Status)
		require.Equal(t, 2, initRes.ExercisesAnalyzed)

		if initRes.ModelsInitialized {
			var count int
			require.NoError(t, s.dbPool.QueryRow(ctx, "SELECT COUNT(*) FROM model_snapshot").Scan(&count))
			require.Positive(t, count)
		}
	})

	var predictionID string
	s.Run("predict", func() {
		status, body := s.doRequest(ctx, http.MethodGet, "/predictions/squat?track=true", nil)
		require.Equal(t, http.StatusOK, status, string(body))

		var pred gymstats.PredictionResponse
		require.NoError(t, json.Unmarshal(body, &pred))
		require.Equal(t, "squat", pred.ExerciseName)
		require.Equal(t, 98.0, pred.CurrentWeight)
		require.GreaterOrEqual(t, pred.PredictedWeight, pred.CurrentWeight)
		require.NotEmpty(t, pred.PredictionID)
		predictionID = pred.PredictionID
	})

	s.Run("analyze all", func() {
		status, body := s.doRequest(ctx, http.MethodGet, "/predictions", nil)
		require.Equal(t, http.StatusOK, status, string(body))

		var results map[string]pipeline.Result
		require.NoError(t, json.Unmarshal(body, &results))
		require.Len(t, results, 2)
		require.NotContains(t, results, "deadlift")
	})

	s.Run("feedback", func() {
		status, body := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("/feedback/%s", predictionID), gymstats.FeedbackRequest{
			Type: learning.FeedbackActualPerformance,
			Data: learning.FeedbackData{ActualWeight: 100, ActualReps: 8},
		})
		require.Equal(t, http.StatusOK, status, string(body))

		status, _ = s.doRequest(ctx, http.MethodPost, "/feedback/unknown-id", gymstats.FeedbackRequest{
			Type: learning.FeedbackUserSatisfaction,
			Data: learning.FeedbackData{Rating: 4},
		})
		require.Equal(t, http.StatusNotFound, status)
	})

	s.Run("metrics", func() {
		status, body := s.doRequest(ctx, http.MethodGet, "/predictions/metrics", nil)
		require.Equal(t, http.StatusOK, status, string(body))

		var m pipeline.PipelineMetrics
		require.NoError(t, json.Unmarshal(body, &m))
		require.True(t, m.IsInitialized)
		require.Equal(t, pipeline.StateReady, m.State)
	})

	s.Run("report", func() {
		status, body := s.doRequest(ctx, http.MethodGet, "/feedback/report", nil)
		require.Equal(t, http.StatusOK, status, string(body))

		var report learning.Report
		require.NoError(t, json.Unmarshal(body, &report))
		require.GreaterOrEqual(t, report.Summary.TotalPredictions, 1)
		require.Positive(t, report.Summary.FeedbackRate)
	})
}

func (s *IntegrationTestSuite) TestUnknownPath() {
	status, _ := s.doRequest(context.Background(), http.MethodGet, "/nothing-here", nil)
	s.Equal(http.StatusNotFound, status)
}

func (s *IntegrationTestSuite) TestCorsRejectsUnknownOrigin() {
	req, err := http.NewRequest(http.MethodGet, serverEndpoint+"/predictions/metrics", nil)
	s.Require().NoError(err)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.httpClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}
