package analyzer

import (
	"gonum.org/v1/gonum/floats"

	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// Statistics is the descriptive summary of a dataset.
type Statistics struct {
	General   GeneralStats `json:"general"`
	Quartiles Quartiles    `json:"quartiles"`
}

// GeneralStats aggregates scores and durations across all sessions.
type GeneralStats struct {
	// TotalSessions is the number of records analyzed.
	TotalSessions int `json:"total_sessions"`

	// TotalEntities is the number of distinct entities.
	TotalEntities int `json:"total_entities"`

	MeanScore     float64 `json:"mean_score"`
	MedianScore   float64 `json:"median_score"`
	StdScore      float64 `json:"std_score"`
	VarianceScore float64 `json:"variance_score"`

	MeanDurationMinutes   float64 `json:"mean_duration_minutes"`
	MedianDurationMinutes float64 `json:"median_duration_minutes"`

	// ApprovalRate is the fraction of sessions at or above the pass threshold.
	ApprovalRate float64 `json:"approval_rate"`

	BestScore  float64 `json:"best_score"`
	WorstScore float64 `json:"worst_score"`
}

// Quartiles holds interpolated quartiles of score and duration.
type Quartiles struct {
	ScoreQ1           float64 `json:"score_q1"`
	ScoreQ2           float64 `json:"score_q2"`
	ScoreQ3           float64 `json:"score_q3"`
	DurationQ1Minutes float64 `json:"duration_q1_minutes"`
	DurationQ3Minutes float64 `json:"duration_q3_minutes"`
}

// Difficulty buckets an exercise by score and duration.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "Easy"
	DifficultyModerate Difficulty = "Moderate"
	DifficultyHard     Difficulty = "Hard"
)

// ExerciseStats is the per-exercise breakdown.
type ExerciseStats struct {
	Sessions            int     `json:"sessions"`
	MeanScore           float64 `json:"mean_score"`
	MedianScore         float64 `json:"median_score"`
	StdScore            float64 `json:"std_score"`
	MeanDurationMinutes float64 `json:"mean_duration_minutes"`
	ApprovalRate        float64 `json:"approval_rate"`
	MeanAssistant       float64 `json:"mean_assistant_interactions"`

	// DifficultyIndex is ((1 − mean/max) + min(duration/ceiling, 1)) / 2.
	DifficultyIndex float64    `json:"difficulty_index"`
	Difficulty      Difficulty `json:"difficulty"`
}

// DescriptiveEngine computes aggregate and per-exercise statistics.
type DescriptiveEngine struct {
	cfg Config
}

// NewDescriptiveEngine returns an engine using cfg's thresholds.
func NewDescriptiveEngine(cfg Config) *DescriptiveEngine {
	return &DescriptiveEngine{cfg: cfg.withDefaults()}
}

// Describe computes the dataset summary. An empty dataset yields the zero
// Statistics.
func (e *DescriptiveEngine) Describe(ds *records.Dataset) Statistics {
	if ds.Empty() {
		return Statistics{}
	}

	scores := ds.Scores()
	mins := scaleAll(ds.Durations(), 1.0/60)

	return Statistics{
		General: GeneralStats{
			TotalSessions:         ds.Len(),
			TotalEntities:         ds.EntityCount(),
			MeanScore:             round2(mean(scores)),
			MedianScore:           finite(median(scores)),
			StdScore:              round2(stdDev(scores)),
			VarianceScore:         round2(variance(scores)),
			MeanDurationMinutes:   round2(mean(mins)),
			MedianDurationMinutes: round2(median(mins)),
			ApprovalRate:          round(approvalRate(scores, e.cfg.PassThreshold), 4),
			BestScore:             finite(floats.Max(scores)),
			WorstScore:            finite(floats.Min(scores)),
		},
		Quartiles: Quartiles{
			ScoreQ1:           finite(quantile(scores, 0.25)),
			ScoreQ2:           finite(quantile(scores, 0.50)),
			ScoreQ3:           finite(quantile(scores, 0.75)),
			DurationQ1Minutes: round2(quantile(mins, 0.25)),
			DurationQ3Minutes: round2(quantile(mins, 0.75)),
		},
	}
}

// ByExercise breaks the dataset down per exercise label. An empty dataset
// yields an empty map.
func (e *DescriptiveEngine) ByExercise(ds *records.Dataset) map[string]ExerciseStats {
	out := make(map[string]ExerciseStats)
	for _, g := range ds.ByExercise() {
		scores := g.Column(ds.Scores())
		durations := g.Column(ds.Durations())
		meanScore := mean(scores)
		meanDuration := mean(durations)
		idx := e.difficultyIndex(meanScore, meanDuration)

		out[g.Key] = ExerciseStats{
			Sessions:            len(g.Rows),
			MeanScore:           round2(meanScore),
			MedianScore:         finite(median(scores)),
			StdScore:            round2(stdDev(scores)),
			MeanDurationMinutes: round2(minutes(meanDuration)),
			ApprovalRate:        round(approvalRate(scores, e.cfg.PassThreshold), 4),
			MeanAssistant:       round2(mean(g.Column(ds.Assistants()))),
			DifficultyIndex:     round(idx, 3),
			Difficulty:          classifyDifficulty(idx),
		}
	}
	return out
}

func (e *DescriptiveEngine) difficultyIndex(meanScore, meanDurationSeconds float64) float64 {
	scoreNorm := meanScore / e.cfg.MaxScore
	durationNorm := min(meanDurationSeconds/e.cfg.DifficultyDurationSeconds, 1)
	return finite(((1 - scoreNorm) + durationNorm) / 2)
}

func classifyDifficulty(idx float64) Difficulty {
	switch {
	case idx < 0.3:
		return DifficultyEasy
	case idx < 0.6:
		return DifficultyModerate
	default:
		return DifficultyHard
	}
}

// approvalRate is the fraction of scores at or above threshold.
func approvalRate(scores []float64, threshold float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var passed int
	for _, s := range scores {
		if s >= threshold {
			passed++
		}
	}
	return float64(passed) / float64(len(scores))
}
