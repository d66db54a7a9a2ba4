package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
)

const (
	defaultRecentWindow = 10
	week                = 7 * 24 * time.Hour
	day                 = 24 * time.Hour
)

var compoundKeywords = []string{"squat", "deadlift", "bench", "press", "row", "pull"}

// Engineer turns raw workout history into feature vectors. It never fails:
// malformed or missing data degrades into default values.
type Engineer struct {
	recentWindow int
}

func NewEngineer() *Engineer {
	return &Engineer{
		recentWindow: defaultRecentWindow,
	}
}

// Extract builds the feature vector of one exercise. An empty level is derived
// from the whole workout history.
func (e *Engineer) Extract(exerciseName string, sessions []workouts.Session, level constraints.Level) Vector {
	if level == "" {
		level = DetermineLevel(sessions)
	}
	return e.FromHistory(exerciseName, workouts.ExtractHistory(exerciseName, sessions), level)
}

// FromHistory builds the feature vector from an already extracted, sorted history.
func (e *Engineer) FromHistory(exerciseName string, history []workouts.HistoryPoint, level constraints.Level) Vector {
	v := Default(exerciseName, level)
	if len(history) == 0 {
		return v
	}

	v.DataPoints = len(history)
	e.temporal(&v, history)
	performance(&v, history)
	behavioural(&v, history)
	v.RealisticProgressionRate = realisticProgressionRate(history, v.ExerciseType)
	v.ExerciseExperience = len(history)
	statistical(&v, history)

	return v
}

func (e *Engineer) temporal(v *Vector, history []workouts.HistoryPoint) {
	recent := history
	if len(recent) > e.recentWindow {
		recent = recent[len(recent)-e.recentWindow:]
	}

	v.Progression1Week = progression(recent, 1)
	v.Progression2Weeks = progression(recent, 2)
	v.Progression4Weeks = progression(recent, 4)
	v.Progression8Weeks = progression(recent, 8)
	v.Frequency1Week = frequency(recent, 1)
	v.Frequency2Weeks = frequency(recent, 2)
	v.Frequency4Weeks = frequency(recent, 4)
	v.ConsistencyScore = consistency(recent)
	v.MomentumScore = momentum(recent)
	v.Acceleration = acceleration(recent)
	v.AvgRecoveryHours, v.LastRecoveryHours = recoveryHours(recent)
	v.TrainingStreak = trainingStreak(recent)
	v.RecentPR = hasRecentPR(history)
	v.DaysSincePR = daysSincePR(history)
}

// progression is the relative weight change inside the trailing N-week window.
// With fewer than two points in the window it compares against the point N
// indices back.
func progression(history []workouts.HistoryPoint, weeks int) float64 {
	last := history[len(history)-1]
	cutoff := last.Timestamp.Add(-time.Duration(weeks) * week)

	var window []workouts.HistoryPoint
	for _, h := range history {
		if h.Timestamp.After(cutoff) {
			window = append(window, h)
		}
	}
	if len(window) >= 2 && window[0].Weight > 0 {
		return (window[len(window)-1].Weight - window[0].Weight) / window[0].Weight
	}

	if len(history) > weeks {
		prev := history[len(history)-1-weeks].Weight
		if prev > 0 {
			return (last.Weight - prev) / prev
		}
	}
	return 0
}

func frequency(history []workouts.HistoryPoint, weeks int) float64 {
	cutoff := history[len(history)-1].Timestamp.Add(-time.Duration(weeks) * week)
	count := 0
	for _, h := range history {
		if h.Timestamp.After(cutoff) {
			count++
		}
	}
	return float64(count) / float64(weeks)
}

func consistency(history []workouts.HistoryPoint) float64 {
	if len(history) < 3 {
		return 0
	}
	return math.Max(0, 100-10*stats.StdDev(workouts.Weights(history)))
}

// momentum is the % change of the mean of the last 3 weights against the
// mean of the (up to) 3 before them.
func momentum(history []workouts.HistoryPoint) float64 {
	weights := workouts.Weights(history)
	if len(weights) < 2 {
		return 0
	}
	split := len(weights) - 3
	if split < 1 {
		split = 1
	}
	from := split - 3
	if from < 0 {
		from = 0
	}
	previous := stats.Mean(weights[from:split])
	if previous <= 0 {
		return 0
	}
	return (stats.Mean(weights[split:]) - previous) / previous * 100
}

func acceleration(history []workouts.HistoryPoint) float64 {
	n := len(history)
	if n < 4 {
		return 0
	}
	lastDelta := history[n-1].Weight - history[n-2].Weight
	prevDelta := history[n-2].Weight - history[n-3].Weight
	return lastDelta - prevDelta
}

func recoveryHours(history []workouts.HistoryPoint) (avg, last float64) {
	n := len(history)
	if n < 2 {
		return 0, 0
	}
	total := history[n-1].Timestamp.Sub(history[0].Timestamp).Hours()
	return total / float64(n-1), history[n-1].Timestamp.Sub(history[n-2].Timestamp).Hours()
}

// trainingStreak counts recent points, walking back from the last one, while the
// gap stays within a tolerance that grows with the streak.
func trainingStreak(history []workouts.HistoryPoint) int {
	ref := history[len(history)-1].Timestamp
	streak := 0
	for i := len(history) - 1; i >= 0; i-- {
		daysDiff := ref.Sub(history[i].Timestamp).Hours() / 24
		if daysDiff > float64(streak*2+7) {
			break
		}
		streak++
	}
	return streak
}

func hasRecentPR(history []workouts.HistoryPoint) bool {
	if len(history) < 2 {
		return false
	}
	weights := workouts.Weights(history)
	split := len(weights) - 3
	if split < 1 {
		split = 1
	}
	return stats.Max(weights[split:]) > stats.Max(weights[:split])
}

func daysSincePR(history []workouts.HistoryPoint) int {
	weights := workouts.Weights(history)
	maxWeight := stats.Max(weights)
	for i, w := range weights {
		if w == maxWeight {
			return int(history[len(history)-1].Timestamp.Sub(history[i].Timestamp) / day)
		}
	}
	return 0
}

func performance(v *Vector, history []workouts.HistoryPoint) {
	var weights, volumes []float64
	for _, h := range history {
		if h.Weight > 0 {
			weights = append(weights, h.Weight)
		}
		volumes = append(volumes, h.Volume)
	}

	if len(weights) > 0 {
		v.CurrentWeight = weights[len(weights)-1]
		v.MaxWeight = stats.Max(weights)
		v.MinWeight = stats.Min(weights)
		v.AvgWeight = stats.Mean(weights)
	}

	for _, vol := range volumes {
		v.TotalVolume += vol
	}
	v.AvgVolume = stats.Mean(volumes)
	v.VolumeTrend = volumeTrend(volumes)
	v.IntensityScore = intensity(history)
	v.CurrentVolume = volumes[len(volumes)-1]
	v.MaxVolumeLast4 = stats.Max(volumes[max(0, len(volumes)-4):])

	recent := workouts.Weights(history[max(0, len(history)-5):])
	v.RecentAvgWeight = stats.Mean(recent)
	v.RecentMaxWeight = stats.Max(recent)
}

func volumeTrend(volumes []float64) float64 {
	if len(volumes) < 2 {
		return 0
	}
	half := len(volumes) / 2
	first := stats.Mean(volumes[:half])
	if first == 0 {
		return 0
	}
	return (stats.Mean(volumes[half:]) - first) / first * 100
}

// intensity is the mean weight per rep, normalised by its maximum (at least 1).
func intensity(history []workouts.HistoryPoint) float64 {
	raw := make([]float64, len(history))
	maxVal := 1.0
	for i, h := range history {
		if h.Reps > 0 {
			raw[i] = h.Weight / float64(h.Reps)
		}
		maxVal = math.Max(maxVal, raw[i])
	}
	var sum float64
	for _, r := range raw {
		sum += r / maxVal
	}
	return sum / float64(len(raw))
}

func behavioural(v *Vector, history []workouts.HistoryPoint) {
	n := len(history)
	if n == 1 {
		v.WorkoutFrequency = 1
	} else {
		spanDays := math.Max(1, history[n-1].Timestamp.Sub(history[0].Timestamp).Hours()/24)
		v.WorkoutFrequency = float64(n) / (spanDays / 7)
	}

	var durations []float64
	for _, h := range history {
		if h.Duration > 0 {
			durations = append(durations, h.Duration)
		}
	}
	v.AvgSessionDuration = stats.Mean(durations)
	if len(durations) >= 2 {
		if mean := stats.Mean(durations); mean > 0 {
			v.DurationConsistency = math.Max(0, 100-stats.StdDev(durations)/mean*100)
		}
	}

	if n >= 3 {
		intervals := make([]float64, 0, n-1)
		for i := 1; i < n; i++ {
			intervals = append(intervals, history[i].Timestamp.Sub(history[i-1].Timestamp).Hours())
		}
		if mean := stats.Mean(intervals); mean > 0 {
			v.TrainingConsistency = math.Max(0, 1-stats.StdDev(intervals)/mean)
		}
	}
}

func realisticProgressionRate(history []workouts.HistoryPoint, exType constraints.ExerciseType) float64 {
	if len(history) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(history); i++ {
		total += history[i].Weight - history[i-1].Weight
	}
	return total / float64(len(history)-1) * constraints.Multiplier(exType)
}

func statistical(v *Vector, history []workouts.HistoryPoint) {
	var weights []float64
	for _, h := range history {
		if h.Weight > 0 {
			weights = append(weights, h.Weight)
		}
	}
	v.WeightStdDev = stats.StdDev(weights)
	v.WeightVariance = stats.Variance(weights)
	v.WeightSkewness = stats.Skewness(weights)
	v.WeightKurtosis = stats.Kurtosis(weights)
	v.TrendSlope = stats.Slope(workouts.Weights(history))
}

func MuscleGroupOf(exerciseName string) string {
	name := strings.ToLower(exerciseName)
	switch {
	case containsAny(name, "squat", "leg"):
		return MuscleLegs
	case containsAny(name, "shoulder", "deltoid"):
		return MuscleShoulders
	case containsAny(name, "bench", "press", "pec"):
		return MuscleChest
	case containsAny(name, "pull", "row"):
		return MuscleBack
	case containsAny(name, "curl", "tricep", "bicep"):
		return MuscleArms
	default:
		return MuscleOther
	}
}

func ExerciseTypeOf(exerciseName string) constraints.ExerciseType {
	if containsAny(strings.ToLower(exerciseName), compoundKeywords...) {
		return constraints.ExerciseCompound
	}
	return constraints.ExerciseIsolation
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// DetermineLevel estimates the user level from the whole workout history: the
// number of dated sessions, and the average per-session progression of the
// exercises present in both the first and the last session.
func DetermineLevel(sessions []workouts.Session) constraints.Level {
	var dated []workouts.Session
	for _, s := range sessions {
		if !s.Date.IsZero() {
			dated = append(dated, s)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].Date.Before(dated[j].Date)
	})

	return constraints.DetermineUserLevel(len(dated), averageProgression(dated))
}

func averageProgression(sessions []workouts.Session) float64 {
	if len(sessions) < 2 {
		return 0
	}

	first, last := sessions[0], sessions[len(sessions)-1]
	lastWeights := make(map[string]float64)
	for _, e := range last.Exercises {
		lastWeights[e.Name] = maxSetWeight(e)
	}

	var total float64
	count := 0
	for _, e := range first.Exercises {
		firstWeight := maxSetWeight(e)
		lastWeight, ok := lastWeights[e.Name]
		if !ok || firstWeight <= 0 || lastWeight <= 0 {
			continue
		}
		total += lastWeight - firstWeight
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(len(sessions)*count)
}

func maxSetWeight(e workouts.ExerciseEntry) float64 {
	var m float64
	for _, s := range e.Sets {
		m = math.Max(m, s.Weight)
	}
	return m
}
