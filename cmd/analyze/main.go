// Package main trains the prediction pipeline on an exported workouts file and
// prints the next-session prediction for every exercise in it, no database needed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/pipeline"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
)

func main() {
	workoutsFile := flag.String("workouts", "./workouts.json", "path to the exported workouts json")
	level := flag.String("level", "", "training level override [beginner | intermediate | advanced]")
	exercise := flag.String("exercise", "", "only predict this exercise")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	f, err := os.Open(*workoutsFile)
	if err != nil {
		log.Fatalf("open workouts file: %s", err)
	}
	defer f.Close()

	opts := runOptions{Exercise: *exercise}
	if *level != "" {
		opts.Level = constraints.ParseLevel(*level)
	}

	if err := run(context.Background(), f, os.Stdout, opts); err != nil {
		log.Fatalf("%s", err)
	}
}

type runOptions struct {
	Level    constraints.Level
	Exercise string
}

type report struct {
	Initialization pipeline.InitResult         `json:"initialization"`
	Predictions    map[string]pipeline.Result `json:"predictions"`
	Metrics        pipeline.PipelineMetrics   `json:"metrics"`
}

func run(ctx context.Context, in io.Reader, out io.Writer, opts runOptions) error {
	var sessions []workouts.Session
	if err := json.NewDecoder(in).Decode(&sessions); err != nil {
		return fmt.Errorf("decode workouts: %w", err)
	}
	log.Debugf("loaded %d sessions", len(sessions))

	predictor := pipeline.New(pipeline.Params{})
	defer predictor.Close()

	initRes, err := predictor.Initialize(ctx, sessions, pipeline.User{Level: opts.Level})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	log.Debugf("initialized: %s", initRes.Status)

	predictions := make(map[string]pipeline.Result)
	if opts.Exercise != "" {
		res, err := predictor.Predict(ctx, opts.Exercise, sessions, pipeline.Options{Level: opts.Level})
		if err != nil {
			return fmt.Errorf("predict %s: %w", opts.Exercise, err)
		}
		predictions[opts.Exercise] = res
	} else {
		predictions, err = predictor.AnalyzeAllExercises(ctx, sessions)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report{
		Initialization: initRes,
		Predictions:    predictions,
		Metrics:        predictor.Metrics(),
	})
}
