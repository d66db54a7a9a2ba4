package plateau

import (
	"github.com/2beens/gymstats-predictor/internal/gymstats/constraints"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
)

const maxRecommendations = 6

var (
	volumeAdvice = []string{
		"Add sets progressively (one more set per week)",
		"Use intensification techniques such as drop sets or supersets",
		"Vary accessory exercises to stimulate growth",
		"Optimise recovery: sleep, nutrition, stress",
	}
	intensityAdvice = []string{
		"Include high intensity sessions (85%+ of 1RM)",
		"Try pre-fatigue or post-activation techniques",
		"Test your 1RM to recalibrate working percentages",
		"Focus on movement quality and mind-muscle connection",
	}
	frequencyAdvice = []string{
		"Plan sessions ahead to keep training regular",
		"Shorten sessions if time is the issue",
		"Set realistic weekly goals",
		"Add short sessions or home workouts",
	}
	motivationalAdvice = []string{
		"Set new challenging goals",
		"Change your training program completely",
		"Find a training partner or join a community",
		"Take part in a challenge or a friendly competition",
		"Try new exercises or equipment",
	}
	generalAdvice = map[Severity][]string{
		SeverityMild: {
			"Keep a detailed training log",
			"Check that your nutrition supports your goals",
		},
		SeverityModerate: {
			"Prioritise recovery (7-9h of sleep per night)",
			"Make sure you stay well hydrated",
		},
		SeveritySevere: {
			"Consult a coach or a health professional",
			"Add active recovery such as yoga or mobility work",
		},
		SeverityCritical: {
			"Take a complete break (1-2 weeks)",
			"Get a medical check to rule out any issue",
		},
	}
)

func weightAdvice(severity Severity, exType constraints.ExerciseType) []string {
	var recs []string
	switch severity {
	case SeverityMild:
		recs = []string{
			"Slightly increase intensity (more reps or weight)",
			"Rest longer between sets (3-5 min)",
		}
	case SeverityModerate:
		recs = []string{
			"Change the training method (drop sets, rest-pause)",
			"Vary rep ranges (6-8, 8-12, 12-15)",
			"Strengthen the supporting muscles of the movement",
		}
	case SeveritySevere, SeverityCritical:
		recs = []string{
			"Deload for two weeks at -20% intensity",
			"Switch to a similar exercise variation",
			"Temporarily reduce frequency to improve recovery",
		}
	default:
		recs = []string{"Keep monitoring your progression"}
	}

	if exType == constraints.ExerciseCompound {
		return append(recs, "Work on the weak points of the movement (sticking points)")
	}
	return append(recs, "Train this muscle more frequently")
}

// recommendationsFor collects the per-type advice of every plateau, then the
// general advice of the highest severity, deduplicated and capped.
func recommendationsFor(plateaus []Plateau, exType constraints.ExerciseType) []string {
	if len(plateaus) == 0 {
		return []string{"Normal progression, keep it up"}
	}

	var recs []string
	seen := make(map[string]bool)
	add := func(items []string) {
		for _, r := range items {
			if !seen[r] {
				seen[r] = true
				recs = append(recs, r)
			}
		}
	}

	for _, p := range plateaus {
		switch p.Type {
		case TypeWeight:
			add(weightAdvice(p.Severity, exType))
		case TypeVolume:
			add(volumeAdvice)
		case TypeIntensity:
			add(intensityAdvice)
		case TypeFrequency:
			add(frequencyAdvice)
		case TypeMotivational:
			add(motivationalAdvice)
		}
	}
	add(generalAdvice[maxSeverity(plateaus)])

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

type GlobalAnalysis struct {
	TotalExercises        int                 `json:"totalExercises"`
	ExercisesWithPlateaus int                 `json:"exercisesWithPlateaus"`
	PlateauTypes          map[Type]int        `json:"plateauTypes"`
	OverallSeverity       Severity            `json:"overallSeverity"`
	Recommendations       []string            `json:"globalRecommendations"`
	Exercises             map[string]Analysis `json:"exercises"`
}

// AnalyzeGlobal runs Analyze per exercise and grades the share of exercises
// that have at least one plateau.
func (d *Detector) AnalyzeGlobal(histories map[string][]workouts.HistoryPoint, level constraints.Level) GlobalAnalysis {
	g := GlobalAnalysis{
		PlateauTypes:    make(map[Type]int),
		OverallSeverity: SeverityNone,
		Recommendations: []string{},
		Exercises:       make(map[string]Analysis, len(histories)),
	}

	for name, history := range histories {
		a := d.Analyze(name, history, level)
		g.Exercises[name] = a
		g.TotalExercises++
		if !a.HasPlateaus {
			continue
		}
		g.ExercisesWithPlateaus++
		for _, p := range a.DetectedPlateaus {
			g.PlateauTypes[p.Type]++
		}
	}

	ratio := float64(g.ExercisesWithPlateaus) / float64(max(g.TotalExercises, 1))
	switch {
	case ratio > 0.7:
		g.OverallSeverity = SeverityCritical
	case ratio > 0.5:
		g.OverallSeverity = SeveritySevere
	case ratio > 0.3:
		g.OverallSeverity = SeverityModerate
	case ratio > 0.1:
		g.OverallSeverity = SeverityMild
	}

	if g.OverallSeverity != SeverityNone {
		g.Recommendations = []string{
			"Restructure your whole training program",
			"Review your recovery and nutrition in depth",
			"Set new goals and training methods",
		}
	}
	return g
}
