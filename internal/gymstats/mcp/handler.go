package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/pipeline"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler handles MCP tool requests and responses: parses input, calls the service, formats MCP result.
type Handler struct {
	service predictionService
}

// NewHandler builds a handler with the given service.
func NewHandler(service predictionService) *Handler {
	return &Handler{
		service: service,
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("Error encoding response: " + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}
}

func pipelineErrorText(prefix string, err error) string {
	if errors.Is(err, pipeline.ErrNotInitialized) {
		return "The predictor is not initialized yet: call POST /predictions/initialize on the service first"
	}
	if errors.Is(err, pipeline.ErrClosed) {
		return "The predictor is shut down, restart the service"
	}
	return prefix + err.Error()
}

// PredictInput is the input for predict_next_weight.
type PredictInput struct {
	Exercise string `json:"exercise" jsonschema:"Exercise name as logged (e.g. squat, bench press)"`
	Level    string `json:"level,omitempty" jsonschema:"Override the training level: beginner, intermediate or advanced"`
}

// PredictNextWeightTool returns the MCP tool handler for predict_next_weight.
func (h *Handler) PredictNextWeightTool() func(context.Context, *mcp.CallToolRequest, PredictInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PredictInput) (*mcp.CallToolResult, any, error) {
		if in.Exercise == "" {
			return errorResult("Missing exercise"), nil, nil
		}
		var level constraints.Level
		if in.Level != "" {
			level = constraints.ParseLevel(in.Level)
		}
		res, err := h.service.PredictNextWeight(ctx, in.Exercise, level)
		if err != nil {
			return errorResult(pipelineErrorText("Error predicting: ", err)), nil, nil
		}
		return jsonResult(res), nil, nil
	}
}

// AnalyzeAllExercisesTool returns the MCP tool handler for analyze_all_exercises.
func (h *Handler) AnalyzeAllExercisesTool() func(context.Context, *mcp.CallToolRequest, any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
		results, err := h.service.AnalyzeAll(ctx)
		if err != nil {
			return errorResult(pipelineErrorText("Error analyzing exercises: ", err)), nil, nil
		}
		return jsonResult(results), nil, nil
	}
}

// ExerciseHistoryInput is the input for get_exercise_history.
type ExerciseHistoryInput struct {
	Exercise string `json:"exercise" jsonschema:"Exercise name as logged (e.g. squat)"`
	FromDate string `json:"from_date" jsonschema:"Start date (YYYY-MM-DD)"`
	ToDate   string `json:"to_date" jsonschema:"End date (YYYY-MM-DD)"`
}

// GetExerciseHistoryTool returns the MCP tool handler for get_exercise_history.
func (h *Handler) GetExerciseHistoryTool() func(context.Context, *mcp.CallToolRequest, ExerciseHistoryInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ExerciseHistoryInput) (*mcp.CallToolResult, any, error) {
		if in.Exercise == "" {
			return errorResult("Missing exercise"), nil, nil
		}
		from, err := time.Parse("2006-01-02", in.FromDate)
		if err != nil {
			return errorResult("Invalid from_date: use YYYY-MM-DD"), nil, nil
		}
		to, err := time.Parse("2006-01-02", in.ToDate)
		if err != nil {
			return errorResult("Invalid to_date: use YYYY-MM-DD"), nil, nil
		}
		to = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 999999999, to.Location())

		history, err := h.service.ExerciseHistory(ctx, in.Exercise, from, to)
		if err != nil {
			return errorResult("Error fetching exercise history: " + err.Error()), nil, nil
		}
		return jsonResult(history), nil, nil
	}
}

// GetPredictorStatusTool returns the MCP tool handler for get_predictor_status.
func (h *Handler) GetPredictorStatusTool() func(context.Context, *mcp.CallToolRequest, any) (*mcp.CallToolResult, any, error) {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
		return jsonResult(h.service.Status()), nil, nil
	}
}
