// Package plateau detects stalled progression on a single exercise from its
// recorded history. Nothing is reported below a minimum number of points.
package plateau

import (
	"fmt"
	"math"
	"time"

	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/features"
	"github.com/2beens/gymstats-predictor/internal/gymstats/stats"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
)

type Type string

const (
	TypeWeight       Type = "weight"
	TypeVolume       Type = "volume"
	TypeIntensity    Type = "intensity"
	TypeFrequency    Type = "frequency"
	TypeMotivational Type = "motivational"
)

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

func (s Severity) Score() int {
	switch s {
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// severityFor maps stagnant periods to a severity: 8 critical, 6 severe, 4 moderate.
func severityFor(weeksStuck int) Severity {
	switch {
	case weeksStuck >= 8:
		return SeverityCritical
	case weeksStuck >= 6:
		return SeveritySevere
	case weeksStuck >= 4:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

type Thresholds struct {
	Weight float64 `toml:"weight" json:"weight"`
	Volume float64 `toml:"volume" json:"volume"`
}

type Options struct {
	MinDataPoints      int                              `toml:"min_data_points"`
	TrendWindow        int                              `toml:"trend_window"`
	FrequencyThreshold float64                          `toml:"frequency_threshold"`
	LevelThresholds    map[constraints.Level]Thresholds `toml:"-"`
}

func DefaultOptions() Options {
	return Options{
		MinDataPoints:      5,
		TrendWindow:        6,
		FrequencyThreshold: 0.3,
		LevelThresholds: map[constraints.Level]Thresholds{
			constraints.LevelBeginner:     {Weight: 0.02, Volume: 0.03},
			constraints.LevelIntermediate: {Weight: 0.01, Volume: 0.02},
			constraints.LevelAdvanced:     {Weight: 0.005, Volume: 0.015},
		},
	}
}

// Plateau is one detected stall. FrequencyDrop is in percent.
type Plateau struct {
	Type          Type     `json:"type"`
	Severity      Severity `json:"severity"`
	WeeksStuck    int      `json:"weeksStuck"`
	Current       float64  `json:"current,omitempty"`
	Max           float64  `json:"max,omitempty"`
	Trend         float64  `json:"trend"`
	Variance      float64  `json:"variance"`
	FrequencyDrop float64  `json:"frequencyDrop,omitempty"`
	Indicators    []string `json:"indicators,omitempty"`
	Message       string   `json:"message"`
}

type TrendAnalysis struct {
	WeightTrend    float64 `json:"weightTrend"`
	VolumeTrend    float64 `json:"volumeTrend"`
	WeightVariance float64 `json:"weightVariance"`
	VolumeVariance float64 `json:"volumeVariance"`
}

type Details struct {
	DataPoints    int           `json:"dataPoints"`
	TimeSpanWeeks int           `json:"timeSpanWeeks"`
	Trends        TrendAnalysis `json:"trendAnalysis"`
}

type Analysis struct {
	HasPlateaus      bool      `json:"hasPlateaus"`
	DetectedPlateaus []Plateau `json:"detectedPlateaus"`
	OverallSeverity  Severity  `json:"overallSeverity"`
	Confidence       float64   `json:"confidence"`
	Recommendations  []string  `json:"recommendations"`
	Details          *Details  `json:"analysisDetails,omitempty"`
}

type Detector struct {
	opts Options
}

func NewDetector(opts Options) *Detector {
	defaults := DefaultOptions()
	if opts.MinDataPoints <= 0 {
		opts.MinDataPoints = defaults.MinDataPoints
	}
	if opts.TrendWindow <= 0 {
		opts.TrendWindow = defaults.TrendWindow
	}
	if opts.FrequencyThreshold <= 0 {
		opts.FrequencyThreshold = defaults.FrequencyThreshold
	}
	if len(opts.LevelThresholds) == 0 {
		opts.LevelThresholds = defaults.LevelThresholds
	}
	return &Detector{opts: opts}
}

func (d *Detector) thresholds(level constraints.Level) Thresholds {
	if th, ok := d.opts.LevelThresholds[level]; ok {
		return th
	}
	return DefaultOptions().LevelThresholds[constraints.LevelIntermediate]
}

// Analyze runs the five detectors over the trailing window of the history.
func (d *Detector) Analyze(exerciseName string, history []workouts.HistoryPoint, level constraints.Level) Analysis {
	if len(history) < d.opts.MinDataPoints {
		return Analysis{
			OverallSeverity:  SeverityNone,
			DetectedPlateaus: []Plateau{},
			Recommendations:  []string{"Keep logging your sessions to get a reliable analysis"},
		}
	}

	th := d.thresholds(level)
	var detected []Plateau
	for _, p := range []*Plateau{
		d.weightPlateau(history, th.Weight),
		d.volumePlateau(history, th.Volume),
		d.intensityPlateau(history),
		d.frequencyPlateau(history),
		d.motivationalPlateau(history),
	} {
		if p != nil {
			detected = append(detected, *p)
		}
	}
	if detected == nil {
		detected = []Plateau{}
	}

	return Analysis{
		HasPlateaus:      len(detected) > 0,
		DetectedPlateaus: detected,
		OverallSeverity:  overallSeverity(detected),
		Confidence:       detectionConfidence(detected, len(history)),
		Recommendations:  recommendationsFor(detected, features.ExerciseTypeOf(exerciseName)),
		Details: &Details{
			DataPoints:    len(history),
			TimeSpanWeeks: timeSpanWeeks(history),
			Trends:        trends(history),
		},
	}
}

func (d *Detector) window(history []workouts.HistoryPoint) []workouts.HistoryPoint {
	if len(history) > d.opts.TrendWindow {
		return history[len(history)-d.opts.TrendWindow:]
	}
	return history
}

func (d *Detector) weightPlateau(history []workouts.HistoryPoint, threshold float64) *Plateau {
	weights := workouts.Weights(d.window(history))
	if len(weights) < 4 {
		return nil
	}

	trend := stats.Slope(weights)
	variance := stats.Variance(weights)
	stuck := weeksStuck(weights, threshold)
	if math.Abs(trend) >= threshold || variance >= 2*threshold || stuck < 3 {
		return nil
	}

	return &Plateau{
		Type:       TypeWeight,
		Severity:   severityFor(stuck),
		WeeksStuck: stuck,
		Current:    weights[len(weights)-1],
		Max:        stats.Max(weights),
		Trend:      trend,
		Variance:   variance,
		Message:    fmt.Sprintf("weight stagnant for %d sessions", stuck),
	}
}

func (d *Detector) volumePlateau(history []workouts.HistoryPoint, threshold float64) *Plateau {
	window := d.window(history)
	if len(window) < 4 {
		return nil
	}
	volumes := make([]float64, len(window))
	for i, p := range window {
		volumes[i] = p.Volume
	}

	trend := stats.Slope(volumes)
	stuck := weeksStuck(volumes, threshold)
	if math.Abs(trend) >= threshold || stuck < 3 {
		return nil
	}

	return &Plateau{
		Type:       TypeVolume,
		Severity:   severityFor(stuck),
		WeeksStuck: stuck,
		Current:    volumes[len(volumes)-1],
		Max:        stats.Max(volumes),
		Trend:      trend,
		Variance:   stats.Variance(volumes),
		Message:    fmt.Sprintf("training volume stagnant for %d sessions", stuck),
	}
}

// intensityPlateau tracks each session's working weight as a percentage of the
// best Epley estimated 1RM of the window.
func (d *Detector) intensityPlateau(history []workouts.HistoryPoint) *Plateau {
	window := d.window(history)
	if len(window) < 4 {
		return nil
	}
	best := 0.0
	for _, p := range window {
		best = math.Max(best, p.Weight*(1+repsPerSet(p)/30))
	}
	if best <= 0 {
		return nil
	}
	scores := make([]float64, len(window))
	for i, p := range window {
		scores[i] = p.Weight / best * 100
	}

	trend := stats.Slope(scores)
	variance := stats.Variance(scores)
	stuck := weeksStuck(scores, 0.02)
	if math.Abs(trend) >= 1 || variance >= 3 || stuck < 4 {
		return nil
	}

	return &Plateau{
		Type:       TypeIntensity,
		Severity:   severityFor(stuck),
		WeeksStuck: stuck,
		Current:    scores[len(scores)-1],
		Max:        stats.Max(scores),
		Trend:      trend,
		Variance:   variance,
		Message:    fmt.Sprintf("training intensity stagnant for %d sessions", stuck),
	}
}

func repsPerSet(p workouts.HistoryPoint) float64 {
	switch {
	case p.Reps <= 0:
		return 8
	case p.Sets > 0:
		return float64(p.Reps) / float64(p.Sets)
	default:
		return float64(p.Reps)
	}
}

const week = 7 * 24 * time.Hour

// frequencyPlateau compares the sessions of the last four calendar weeks
// with the four weeks before, both counted back from the latest session.
func (d *Detector) frequencyPlateau(history []workouts.HistoryPoint) *Plateau {
	if len(history) < 8 {
		return nil
	}

	last := history[len(history)-1].Timestamp
	recentFrom := last.Add(-4 * week)
	previousFrom := last.Add(-8 * week)

	var recent, previous int
	activeWeeks := make(map[int]bool)
	for _, p := range history {
		switch {
		case p.Timestamp.After(recentFrom):
			recent++
			activeWeeks[int(last.Sub(p.Timestamp)/week)] = true
		case p.Timestamp.After(previousFrom):
			previous++
		}
	}

	drop := float64(previous-recent) / math.Max(float64(previous), 1)
	recentPerWeek := float64(recent) / 4
	if drop <= d.opts.FrequencyThreshold || recentPerWeek >= 2 {
		return nil
	}

	severity := SeverityModerate
	if drop > 0.5 {
		severity = SeveritySevere
	}
	return &Plateau{
		Type:          TypeFrequency,
		Severity:      severity,
		WeeksStuck:    4 - len(activeWeeks),
		Current:       recentPerWeek,
		Max:           float64(previous) / 4,
		FrequencyDrop: math.Round(drop * 100),
		Message:       fmt.Sprintf("training frequency down %.0f%%", drop*100),
	}
}

const (
	indicatorVolumeDecline   = "volume_decline"
	indicatorDurationDecline = "duration_decline"
	indicatorVarietyDecline  = "variety_decline"
	indicatorIrregularity    = "irregularity_increase"
)

func (d *Detector) motivationalPlateau(history []workouts.HistoryPoint) *Plateau {
	if len(history) < 6 {
		return nil
	}
	recent := history[len(history)-6:]

	var indicators []string
	if volumeDecline(recent) {
		indicators = append(indicators, indicatorVolumeDecline)
	}
	if durationDecline(recent) {
		indicators = append(indicators, indicatorDurationDecline)
	}
	if varietyDecline(recent) {
		indicators = append(indicators, indicatorVarietyDecline)
	}
	if irregular(recent) {
		indicators = append(indicators, indicatorIrregularity)
	}
	if len(indicators) < 2 {
		return nil
	}

	severity := SeverityModerate
	if len(indicators) >= 3 {
		severity = SeveritySevere
	}
	return &Plateau{
		Type:       TypeMotivational,
		Severity:   severity,
		WeeksStuck: 4,
		Indicators: indicators,
		Message:    fmt.Sprintf("signs of declining motivation (%d indicators)", len(indicators)),
	}
}

// volumeDecline: the last two sessions average 15% less volume than the two before.
func volumeDecline(points []workouts.HistoryPoint) bool {
	if len(points) < 4 {
		return false
	}
	n := len(points)
	recent := (points[n-1].Volume + points[n-2].Volume) / 2
	previous := (points[n-3].Volume + points[n-4].Volume) / 2
	return (previous-recent)/math.Max(previous, 1) > 0.15
}

func durationDecline(points []workouts.HistoryPoint) bool {
	var durations []float64
	for _, p := range points {
		if p.Duration > 0 {
			durations = append(durations, p.Duration)
		}
	}
	if len(durations) < 4 {
		return false
	}
	return stats.Slope(durations) < -2
}

// varietyDecline: the last three sessions repeat the exact same weight and reps.
func varietyDecline(points []workouts.HistoryPoint) bool {
	if len(points) < 3 {
		return false
	}
	last := points[len(points)-3:]
	for _, p := range last[1:] {
		if p.Weight != last[0].Weight || p.Reps != last[0].Reps {
			return false
		}
	}
	return true
}

func irregular(points []workouts.HistoryPoint) bool {
	if len(points) < 4 {
		return false
	}
	intervals := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		intervals = append(intervals, points[i].Timestamp.Sub(points[i-1].Timestamp).Hours()/24)
	}
	return stats.Variance(intervals) > 20
}

// weeksStuck counts the consecutive most recent points whose relative change to
// the previous point stays below threshold. Each point counts as one week.
func weeksStuck(values []float64, threshold float64) int {
	stuck := 0
	for i := len(values) - 1; i > 0; i-- {
		change := math.Abs((values[i] - values[i-1]) / math.Max(values[i-1], 1))
		if change >= threshold {
			break
		}
		stuck++
	}
	return stuck
}

func overallSeverity(plateaus []Plateau) Severity {
	if len(plateaus) == 0 {
		return SeverityNone
	}
	total := 0
	for _, p := range plateaus {
		total += p.Severity.Score()
	}
	avg := float64(total) / float64(len(plateaus))
	switch {
	case avg >= 3.5:
		return SeverityCritical
	case avg >= 2.5:
		return SeveritySevere
	case avg >= 1.5:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

func maxSeverity(plateaus []Plateau) Severity {
	highest := SeverityMild
	for _, p := range plateaus {
		if p.Severity.Score() > highest.Score() {
			highest = p.Severity
		}
	}
	return highest
}

func detectionConfidence(plateaus []Plateau, dataPoints int) float64 {
	confidence := 50 + math.Min(float64(dataPoints*2), 30) + 5*float64(len(plateaus))
	for _, p := range plateaus {
		if p.Severity == SeveritySevere || p.Severity == SeverityCritical {
			confidence += 10
		}
	}
	return math.Min(confidence, 95)
}

func timeSpanWeeks(history []workouts.HistoryPoint) int {
	if len(history) < 2 {
		return 0
	}
	span := history[len(history)-1].Timestamp.Sub(history[0].Timestamp)
	return int(math.Round(float64(span) / float64(week)))
}

func trends(history []workouts.HistoryPoint) TrendAnalysis {
	weights := workouts.Weights(history)
	volumes := make([]float64, len(history))
	for i, p := range history {
		volumes[i] = p.Volume
	}
	return TrendAnalysis{
		WeightTrend:    stats.Slope(weights),
		VolumeTrend:    stats.Slope(volumes),
		WeightVariance: stats.Variance(weights),
		VolumeVariance: stats.Variance(volumes),
	}
}
