package workouts

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Session is one recorded workout. It is never mutated after being recorded.
type Session struct {
	Date time.Time `json:"date"`
	// Duration of the whole session in seconds.
	Duration  float64         `json:"duration"`
	Exercises []ExerciseEntry `json:"exercises"`
}

type ExerciseEntry struct {
	Name string `json:"name"`
	Sets []Set  `json:"sets"`
}

type Set struct {
	Weight float64 `json:"weight"`
	Reps   int     `json:"reps"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON accepts dates as RFC3339, plain dates or unix milliseconds.
// Anything else leaves the date zero, which excludes the session from history.
func (s *Session) UnmarshalJSON(b []byte) error {
	var raw struct {
		Date      json.RawMessage `json:"date"`
		Duration  json.RawMessage `json:"duration"`
		Exercises []ExerciseEntry `json:"exercises"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	s.Date = parseDate(raw.Date)
	s.Duration = coerceFloat(raw.Duration)
	s.Exercises = raw.Exercises
	return nil
}

// UnmarshalJSON coerces non-numeric, null or negative values to 0.
func (s *Set) UnmarshalJSON(b []byte) error {
	var raw struct {
		Weight json.RawMessage `json:"weight"`
		Reps   json.RawMessage `json:"reps"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		*s = Set{}
		return nil
	}

	s.Weight = coerceFloat(raw.Weight)
	s.Reps = int(coerceFloat(raw.Reps))
	return nil
}

func parseDate(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		str = strings.TrimSpace(str)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, str); err == nil {
				return t
			}
		}
		return time.Time{}
	}

	var millis float64
	if err := json.Unmarshal(raw, &millis); err == nil && millis > 0 {
		return time.UnixMilli(int64(millis)).UTC()
	}

	return time.Time{}
}

func coerceFloat(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return 0
		}
		v = parsed
	}

	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
