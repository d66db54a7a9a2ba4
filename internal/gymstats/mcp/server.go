package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer builds an MCP server with the prediction tools: next weight
// prediction, all-exercises analysis, exercise history and predictor status.
func NewServer(sessions SessionsRepo, predictor Predictor) *mcp.Server {
	h := NewHandler(NewPredictionService(sessions, predictor))
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "gymstats-predictor",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "predict_next_weight",
		Description: "Predicts the working weight for the next session of an exercise, with confidence, reasoning, plateau analysis and recommendations. Args: exercise (e.g. squat); optional: level (beginner, intermediate, advanced).",
	}, h.PredictNextWeightTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "analyze_all_exercises",
		Description: "Predicts the next session weight for every recorded exercise. Use for a full training overview.",
	}, h.AnalyzeAllExercisesTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_exercise_history",
		Description: "Returns the per-session history (heaviest set, total reps, volume) of an exercise in a date range. Args: exercise, from_date, to_date (YYYY-MM-DD).",
	}, h.GetExerciseHistoryTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_predictor_status",
		Description: "Returns the predictor state (mode, training progress, prediction counts, cache size) and the feedback summary (feedback rate, accuracy, recalibrations).",
	}, h.GetPredictorStatusTool())

	return s
}
