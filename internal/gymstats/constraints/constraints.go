package constraints

import (
	"fmt"
	"math"
	"strings"
)

type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

type ExerciseType string

const (
	ExerciseCompound  ExerciseType = "compound"
	ExerciseIsolation ExerciseType = "isolation"
)

const (
	MinIncrement       = 0.5 // kg
	MaxIncrement       = 2.5 // kg
	MaxWeeklyIncrement = 5.0 // kg

	maxConfidence = 95.0
	minConfidence = 20.0
)

// PlateIncrements are the weight steps available with standard gym plates, in kg.
var PlateIncrements = []float64{0.5, 1, 1.25, 2.5, 5, 10, 15, 20}

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

var progressionRanges = map[Level]Range{
	LevelBeginner:     {Min: 1.0, Max: 2.5},
	LevelIntermediate: {Min: 0.5, Max: 1.5},
	LevelAdvanced:     {Min: 0.5, Max: 1.0},
}

var typeMultipliers = map[ExerciseType]float64{
	ExerciseCompound:  1.0,
	ExerciseIsolation: 0.5,
}

// ParseLevel maps free-form input to a Level, defaulting to intermediate.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelBeginner:
		return LevelBeginner
	case LevelAdvanced:
		return LevelAdvanced
	default:
		return LevelIntermediate
	}
}

func ProgressionRange(level Level) Range {
	r, ok := progressionRanges[level]
	if !ok {
		return progressionRanges[LevelIntermediate]
	}
	return r
}

func Multiplier(exType ExerciseType) float64 {
	m, ok := typeMultipliers[exType]
	if !ok {
		return typeMultipliers[ExerciseCompound]
	}
	return m
}

type Result struct {
	OriginalPrediction float64      `json:"originalPrediction"`
	ValidatedWeight    float64      `json:"validatedWeight"`
	Increment          float64      `json:"increment"`
	AppliedConstraints []string     `json:"appliedConstraints"`
	Recommendations    []string     `json:"recommendations"`
	UserLevel          Level        `json:"userLevel"`
	ExerciseType       ExerciseType `json:"exerciseType"`
	Confidence         float64      `json:"confidence"`
	PlateIncrement     float64      `json:"plateIncrement"`
}

// Validate turns a raw model output into a weight the user can actually load on the bar.
// The increment is clamped to the level band scaled by the exercise type multiplier and then
// snapped to the nearest plate increment. A non-positive increment keeps the current weight.
func Validate(rawPrediction, currentWeight float64, level Level, exType ExerciseType) Result {
	band := ProgressionRange(level)
	multiplier := Multiplier(exType)
	if _, ok := progressionRanges[level]; !ok {
		level = LevelIntermediate
	}
	if _, ok := typeMultipliers[exType]; !ok {
		exType = ExerciseCompound
	}

	rawIncrement := rawPrediction - currentWeight
	res := Result{
		OriginalPrediction: rawPrediction,
		ValidatedWeight:    currentWeight,
		AppliedConstraints: []string{},
		Recommendations:    []string{},
		UserLevel:          level,
		ExerciseType:       exType,
		Confidence:         Confidence(rawIncrement, band),
	}

	if math.IsNaN(rawIncrement) || rawIncrement <= 0 {
		res.AppliedConstraints = append(res.AppliedConstraints, "no increase predicted: current weight kept")
		res.Recommendations = append(res.Recommendations, "Consolidate the current weight before progressing")
		return res
	}

	lo, hi := band.Min*multiplier, band.Max*multiplier
	target := rawIncrement
	if target < lo {
		target = lo
		res.AppliedConstraints = append(res.AppliedConstraints, fmt.Sprintf("minimum increment applied: %gkg", lo))
		res.Recommendations = append(res.Recommendations, fmt.Sprintf("Minimum progression for the %s level", level))
	}
	if target > hi {
		target = hi
		res.AppliedConstraints = append(res.AppliedConstraints, fmt.Sprintf("maximum increment applied: %gkg", hi))
		res.Recommendations = append(res.Recommendations, "Progression capped to limit injury risk")
	}

	if exType == ExerciseIsolation {
		res.Recommendations = append(res.Recommendations, "Isolation exercise: progress conservatively")
	} else {
		res.Recommendations = append(res.Recommendations, "Compound exercise: steady loading is sustainable")
	}

	plate := nearestPlate(target)
	if plate != target {
		res.AppliedConstraints = append(res.AppliedConstraints, fmt.Sprintf("rounded to plate increment: %gkg", plate))
	}

	res.ValidatedWeight = currentWeight + plate
	res.Increment = plate
	res.PlateIncrement = plate
	return res
}

// RoundToNearestPlate returns the current weight plus the plate increment closest
// to the requested increase, or the current weight if no increase is requested.
func RoundToNearestPlate(target, currentWeight float64) float64 {
	increment := target - currentWeight
	if math.IsNaN(increment) || increment <= 0 {
		return currentWeight
	}
	return currentWeight + nearestPlate(increment)
}

// ties keep the smaller plate
func nearestPlate(increment float64) float64 {
	best := PlateIncrements[0]
	for _, p := range PlateIncrements[1:] {
		if math.Abs(p-increment) < math.Abs(best-increment) {
			best = p
		}
	}
	return best
}

// Confidence is maximal inside the level band and decays linearly outside of it.
func Confidence(increment float64, band Range) float64 {
	switch {
	case math.IsNaN(increment):
		return minConfidence
	case increment >= band.Min && increment <= band.Max:
		return maxConfidence
	case increment < band.Min:
		return math.Max(minConfidence, maxConfidence-(band.Min-increment)*20)
	default:
		return math.Max(minConfidence, maxConfidence-(increment-band.Max)*15)
	}
}

// DetermineUserLevel estimates the training level from the number of recorded
// sessions (roughly four per month) and the average per-session progression in kg.
func DetermineUserLevel(sessionCount int, avgProgression float64) Level {
	if sessionCount == 0 {
		return LevelBeginner
	}
	months := float64(sessionCount) / 4
	switch {
	case months < 6 || avgProgression > 1.5:
		return LevelBeginner
	case months < 24 || avgProgression > 0.5:
		return LevelIntermediate
	default:
		return LevelAdvanced
	}
}

type Safety struct {
	IsSafe          bool     `json:"isSafe"`
	SafetyScore     float64  `json:"safetyScore"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
}

// CheckSafety flags increments above the per-session maximum and weekly progressions
// (over the last 7 recorded weights) that would exceed the weekly maximum.
func CheckSafety(predictedWeight, currentWeight float64, recentWeights []float64) Safety {
	increment := predictedWeight - currentWeight
	var warnings []string

	if increment > MaxIncrement {
		warnings = append(warnings, fmt.Sprintf("increase too large: %.2fkg > %gkg max", increment, MaxIncrement))
	}

	if len(recentWeights) > 0 {
		if weeklyProgression(recentWeights)+increment > MaxWeeklyIncrement {
			warnings = append(warnings, "weekly progression too fast, injury risk")
		}
	}

	s := Safety{
		IsSafe:          len(warnings) == 0,
		SafetyScore:     math.Max(0, 100-float64(len(warnings))*20),
		Warnings:        warnings,
		Recommendations: []string{},
	}
	if !s.IsSafe {
		s.Recommendations = append(s.Recommendations, "A more careful progression is recommended")
	}
	return s
}

func weeklyProgression(weights []float64) float64 {
	if len(weights) < 2 {
		return 0
	}
	recent := weights
	if len(recent) > 7 {
		recent = recent[len(recent)-7:]
	}
	return recent[len(recent)-1] - recent[0]
}
