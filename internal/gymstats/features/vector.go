package features

import (
	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
)

const (
	MuscleLegs      = "legs"
	MuscleShoulders = "shoulders"
	MuscleChest     = "chest"
	MuscleBack      = "back"
	MuscleArms      = "arms"
	MuscleOther     = "other"
)

// Vector is the fixed feature schema of one exercise. Every field has a defined
// zero value, so a vector built from no history is still complete.
type Vector struct {
	ExerciseName string            `json:"exerciseName"`
	UserLevel    constraints.Level `json:"userLevel"`
	DataPoints   int               `json:"dataPoints"`

	// Temporal, computed over the last 10 points.
	Progression1Week  float64 `json:"progression1Week"`
	Progression2Weeks float64 `json:"progression2Weeks"`
	Progression4Weeks float64 `json:"progression4Weeks"`
	Progression8Weeks float64 `json:"progression8Weeks"`
	Frequency1Week    float64 `json:"frequency1Week"`
	Frequency2Weeks   float64 `json:"frequency2Weeks"`
	Frequency4Weeks   float64 `json:"frequency4Weeks"`
	ConsistencyScore  float64 `json:"consistencyScore"`
	MomentumScore     float64 `json:"momentumScore"`
	Acceleration      float64 `json:"acceleration"`
	AvgRecoveryHours  float64 `json:"avgRecoveryHours"`
	LastRecoveryHours float64 `json:"lastRecoveryHours"`
	TrainingStreak    int     `json:"trainingStreak"`
	RecentPR          bool    `json:"recentPr"`
	DaysSincePR       int     `json:"daysSincePr"`

	// Performance.
	CurrentWeight   float64 `json:"currentWeight"`
	MaxWeight       float64 `json:"maxWeight"`
	MinWeight       float64 `json:"minWeight"`
	AvgWeight       float64 `json:"avgWeight"`
	TotalVolume     float64 `json:"totalVolume"`
	AvgVolume       float64 `json:"avgVolume"`
	VolumeTrend     float64 `json:"volumeTrend"`
	IntensityScore  float64 `json:"intensityScore"`
	RecentAvgWeight float64 `json:"recentAvgWeight"`
	RecentMaxWeight float64 `json:"recentMaxWeight"`
	CurrentVolume   float64 `json:"currentVolume"`
	MaxVolumeLast4  float64 `json:"maxVolumeLast4"`

	// Behavioural.
	WorkoutFrequency    float64 `json:"workoutFrequency"`
	AvgSessionDuration  float64 `json:"avgSessionDuration"`
	DurationConsistency float64 `json:"durationConsistency"`
	TrainingConsistency float64 `json:"trainingConsistency"`

	// Contextual.
	MuscleGroup              string                   `json:"muscleGroup"`
	ExerciseType             constraints.ExerciseType `json:"exerciseType"`
	IsCompound               bool                     `json:"isCompound"`
	RealisticProgressionRate float64                  `json:"realisticProgressionRate"`
	ExerciseExperience       int                      `json:"exerciseExperience"`

	// Statistical, over the whole weight series.
	WeightStdDev   float64 `json:"weightStdDev"`
	WeightVariance float64 `json:"weightVariance"`
	WeightSkewness float64 `json:"weightSkewness"`
	WeightKurtosis float64 `json:"weightKurtosis"`
	TrendSlope     float64 `json:"trendSlope"`
}

// Default is the vector of an exercise with no recorded history.
func Default(exerciseName string, level constraints.Level) Vector {
	if level == "" {
		level = constraints.LevelBeginner
	}
	exType := ExerciseTypeOf(exerciseName)
	return Vector{
		ExerciseName: exerciseName,
		UserLevel:    level,
		MuscleGroup:  MuscleGroupOf(exerciseName),
		ExerciseType: exType,
		IsCompound:   exType == constraints.ExerciseCompound,
	}
}

// Names of the learner inputs, in ToArray order.
var names = []string{
	"progression_1week",
	"progression_2weeks",
	"progression_4weeks",
	"frequency_1week",
	"frequency_2weeks",
	"consistency_score",
	"momentum_score",
	"current_weight",
	"max_weight",
	"avg_weight",
	"total_volume",
	"intensity_score",
	"is_compound_exercise",
	"realistic_progression_rate",
	"exercise_experience",
}

// Size is the number of learner inputs.
var Size = len(names)

func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// ToArray is the one mapping from a vector to learner inputs.
func (v Vector) ToArray() []float64 {
	return []float64{
		v.Progression1Week,
		v.Progression2Weeks,
		v.Progression4Weeks,
		v.Frequency1Week,
		v.Frequency2Weeks,
		v.ConsistencyScore,
		v.MomentumScore,
		v.CurrentWeight,
		v.MaxWeight,
		v.AvgWeight,
		v.TotalVolume,
		v.IntensityScore,
		boolToFloat(v.IsCompound),
		v.RealisticProgressionRate,
		float64(v.ExerciseExperience),
	}
}

// FromArray is the inverse of ToArray. Missing trailing values stay zero,
// extra values are ignored.
func FromArray(values []float64) Vector {
	padded := make([]float64, Size)
	copy(padded, values)

	v := Vector{
		Progression1Week:         padded[0],
		Progression2Weeks:        padded[1],
		Progression4Weeks:        padded[2],
		Frequency1Week:           padded[3],
		Frequency2Weeks:          padded[4],
		ConsistencyScore:         padded[5],
		MomentumScore:            padded[6],
		CurrentWeight:            padded[7],
		MaxWeight:                padded[8],
		AvgWeight:                padded[9],
		TotalVolume:              padded[10],
		IntensityScore:           padded[11],
		IsCompound:               padded[12] >= 0.5,
		RealisticProgressionRate: padded[13],
		ExerciseExperience:       int(padded[14]),
	}
	v.ExerciseType = constraints.ExerciseIsolation
	if v.IsCompound {
		v.ExerciseType = constraints.ExerciseCompound
	}
	return v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
