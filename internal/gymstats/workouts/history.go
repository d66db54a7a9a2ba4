package workouts

import (
	"sort"
	"time"
)

// HistoryPoint is one session of a single exercise, flattened from its sets.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	// Weight is the heaviest set of the session.
	Weight float64 `json:"weight"`
	// Reps is the total over all sets.
	Reps      int          `json:"reps"`
	Sets      int          `json:"sets"`
	Volume    float64      `json:"volume"`
	Duration  float64      `json:"duration"`
	DayOfWeek time.Weekday `json:"dayOfWeek"`
}

// ExtractHistory returns the points recorded for the exercise, oldest first.
// Sessions without a valid date are skipped.
func ExtractHistory(exerciseName string, sessions []Session) []HistoryPoint {
	var history []HistoryPoint
	for _, s := range sessions {
		if s.Date.IsZero() {
			continue
		}
		for _, e := range s.Exercises {
			if e.Name != exerciseName {
				continue
			}

			var maxWeight float64
			totalReps := 0
			for _, set := range e.Sets {
				if set.Weight > maxWeight {
					maxWeight = set.Weight
				}
				totalReps += set.Reps
			}

			history = append(history, HistoryPoint{
				Timestamp: s.Date,
				Weight:    maxWeight,
				Reps:      totalReps,
				Sets:      len(e.Sets),
				Volume:    maxWeight * float64(totalReps),
				Duration:  s.Duration,
				DayOfWeek: s.Date.Weekday(),
			})
			// first matching entry per session
			break
		}
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})

	return history
}

// ExerciseNames lists the distinct exercise names in first-seen order.
func ExerciseNames(sessions []Session) []string {
	seen := make(map[string]bool)
	names := []string{}
	for _, s := range sessions {
		for _, e := range s.Exercises {
			if e.Name == "" || seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			names = append(names, e.Name)
		}
	}
	return names
}

// Chronological returns the dated sessions oldest first. Sessions sharing a
// date keep their input order, the same order ExtractHistory reports them in.
func Chronological(sessions []Session) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.Date.IsZero() {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Positions returns the index of every session recording the exercise. Over
// chronological sessions it lines up with ExtractHistory point by point.
func Positions(exerciseName string, sessions []Session) []int {
	var at []int
	for i, s := range sessions {
		if s.Date.IsZero() {
			continue
		}
		for _, e := range s.Exercises {
			if e.Name == exerciseName {
				at = append(at, i)
				break
			}
		}
	}
	return at
}

// Weights projects the history onto its weight series.
func Weights(history []HistoryPoint) []float64 {
	weights := make([]float64, len(history))
	for i, h := range history {
		weights[i] = h.Weight
	}
	return weights
}

// LastDate returns the most recent valid session date, or the zero time.
func LastDate(sessions []Session) time.Time {
	var last time.Time
	for _, s := range sessions {
		if s.Date.After(last) {
			last = s.Date
		}
	}
	return last
}
