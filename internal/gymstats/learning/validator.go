package learning

import (
	"fmt"
	"math"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
)

const (
	defaultCandidateConfidence = 70
	maxProgressionRate         = 0.1
	warningConfidencePenalty   = 0.1
)

var levelProgressionLimits = map[constraints.Level]float64{
	constraints.LevelBeginner:     0.08,
	constraints.LevelIntermediate: 0.05,
	constraints.LevelAdvanced:     0.03,
}

type ValidationReport struct {
	IsValid      bool     `json:"isValid"`
	Confidence   float64  `json:"confidence"`
	Warnings     []string `json:"warnings"`
	Adjustments  []string `json:"adjustments"`
	QualityScore float64  `json:"qualityScore"`
}

type ruleResult struct {
	valid      bool
	warning    string
	adjustment string
	score      float64
}

type rule func(candidate Tracked, fv features.Vector, history []workouts.HistoryPoint) ruleResult

// Validator is the last gate before a prediction reaches the user.
type Validator struct {
	rules []rule
}

func NewValidator() *Validator {
	return &Validator{
		rules: []rule{
			weightConstraints,
			progressionRate,
			levelCeiling,
			historicalConsistency,
		},
	}
}

func (v *Validator) Validate(candidate Tracked, fv features.Vector, history []workouts.HistoryPoint) ValidationReport {
	report := ValidationReport{
		IsValid:     true,
		Confidence:  candidate.Confidence,
		Warnings:    []string{},
		Adjustments: []string{},
	}
	if report.Confidence <= 0 {
		report.Confidence = defaultCandidateConfidence
	}

	var total float64
	for _, r := range v.rules {
		res := r(candidate, fv, history)
		if !res.valid {
			report.IsValid = false
		}
		if res.warning != "" {
			report.Warnings = append(report.Warnings, res.warning)
		}
		if res.adjustment != "" {
			report.Adjustments = append(report.Adjustments, res.adjustment)
		}
		total += res.score
	}

	report.QualityScore = math.Min(1, total/float64(len(v.rules)))
	if n := len(report.Warnings); n > 0 {
		report.Confidence *= math.Max(0, 1-float64(n)*warningConfidencePenalty)
	}
	return report
}

func weightConstraints(candidate Tracked, fv features.Vector, _ []workouts.HistoryPoint) ruleResult {
	increase := candidate.NextWeight - fv.CurrentWeight
	switch {
	case increase < 0:
		return ruleResult{
			warning:    "Prediction suggests a weight regression",
			adjustment: "Keep the current weight",
			score:      0.2,
		}
	case increase > constraints.MaxIncrement:
		return ruleResult{
			warning:    fmt.Sprintf("Weight increase too large: %gkg", increase),
			adjustment: fmt.Sprintf("Limit the increase to %gkg", constraints.MaxIncrement),
			score:      0.3,
		}
	case increase > 0 && increase < constraints.MinIncrement:
		return ruleResult{
			valid:   true,
			warning: "Very small weight increase",
			score:   0.7,
		}
	default:
		return ruleResult{valid: true, score: 1}
	}
}

func relativeIncrease(candidate Tracked, fv features.Vector) float64 {
	if fv.CurrentWeight <= 0 {
		return 0
	}
	return (candidate.NextWeight - fv.CurrentWeight) / fv.CurrentWeight
}

func progressionRate(candidate Tracked, fv features.Vector, _ []workouts.HistoryPoint) ruleResult {
	rate := relativeIncrease(candidate, fv)
	if math.Abs(rate) > maxProgressionRate {
		return ruleResult{
			warning:    "Unrealistic progression rate",
			adjustment: "A more gradual progression is recommended",
			score:      0.4,
		}
	}
	return ruleResult{
		valid: true,
		score: math.Max(0.5, 1-math.Abs(rate-fv.Progression2Weeks)),
	}
}

func levelCeiling(candidate Tracked, fv features.Vector, _ []workouts.HistoryPoint) ruleResult {
	level := constraints.ParseLevel(string(fv.UserLevel))
	limit := levelProgressionLimits[level]
	if relativeIncrease(candidate, fv) > limit {
		return ruleResult{
			warning:    fmt.Sprintf("Progression too fast for %s level", level),
			adjustment: fmt.Sprintf("Reduce to %.1f%% max", limit*100),
			score:      0.5,
		}
	}
	return ruleResult{valid: true, score: 1}
}

func historicalConsistency(candidate Tracked, fv features.Vector, history []workouts.HistoryPoint) ruleResult {
	if len(history) < 3 {
		return ruleResult{valid: true, score: 0.6}
	}

	recent := workouts.Weights(history)
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	if stats.Variance(recent) > 2 {
		conservative := fv.CurrentWeight + 0.5*stats.Slope(recent)
		if math.Abs(candidate.NextWeight-conservative) > 1 {
			return ruleResult{
				warning:    "Prediction inconsistent with the recent variability",
				adjustment: "A more conservative progression is recommended",
				score:      0.4,
			}
		}
	}
	return ruleResult{valid: true, score: 0.9}
}
