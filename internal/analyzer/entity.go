package analyzer

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// progressWindow is how many recent sessions per exercise the timeline keeps.
const progressWindow = 10

// EntitySummary is the headline numbers of one entity's sessions.
type EntitySummary struct {
	MeanScore           float64 `json:"mean_score"`
	MaxScore            float64 `json:"max_score"`
	MinScore            float64 `json:"min_score"`
	MeanDurationMinutes float64 `json:"mean_duration_minutes"`
}

// EntityExercise is one entity's results on one exercise.
type EntityExercise struct {
	Exercise  string  `json:"exercise"`
	Sessions  int     `json:"sessions"`
	MeanScore float64 `json:"mean_score"`
	Best      float64 `json:"best"`
}

// ProgressPoint is one session on an entity's timeline.
type ProgressPoint struct {
	Score float64 `json:"score"`
	Day   string  `json:"day"`  // DD/MM
	Date  string  `json:"date"` // YYYY-MM-DD
}

// EntityView is the per-entity analysis.
type EntityView struct {
	Summary     EntitySummary              `json:"summary"`
	PerExercise []EntityExercise           `json:"per_exercise"`
	Progress    map[string][]ProgressPoint `json:"progress"`
	Insights    []string                   `json:"insights"`
}

// DescribeEntity summarises the sessions of a single entity. An empty
// dataset yields zeroed numbers and empty collections.
func (e *DescriptiveEngine) DescribeEntity(ds *records.Dataset) EntityView {
	view := EntityView{
		PerExercise: []EntityExercise{},
		Progress:    map[string][]ProgressPoint{},
		Insights:    []string{},
	}
	if ds.Empty() {
		return view
	}

	scores := ds.Scores()
	view.Summary = EntitySummary{
		MeanScore:           round2(mean(scores)),
		MaxScore:            finite(floats.Max(scores)),
		MinScore:            finite(floats.Min(scores)),
		MeanDurationMinutes: round2(minutes(mean(ds.Durations()))),
	}

	rows := ds.Rows()
	for _, g := range ds.ByExercise() {
		ex := g.Column(scores)
		view.PerExercise = append(view.PerExercise, EntityExercise{
			Exercise:  g.Key,
			Sessions:  len(g.Rows),
			MeanScore: round2(mean(ex)),
			Best:      finite(floats.Max(ex)),
		})

		recent := make([]records.SessionRecord, len(g.Rows))
		for i, idx := range g.Rows {
			recent[i] = rows[idx]
		}
		sort.SliceStable(recent, func(i, j int) bool { return recent[i].OccurredAt.After(recent[j].OccurredAt) })
		if len(recent) > progressWindow {
			recent = recent[:progressWindow]
		}
		points := make([]ProgressPoint, 0, len(recent))
		for i := len(recent) - 1; i >= 0; i-- {
			r := recent[i]
			points = append(points, ProgressPoint{
				Score: finite(r.Score),
				Day:   r.OccurredAt.Format("02/01"),
				Date:  r.OccurredAt.Format("2006-01-02"),
			})
		}
		view.Progress[g.Key] = points
	}

	view.Insights = e.entityInsights(rows)
	return view
}

// entityInsights grades the overall mean and compares the three most recent
// sessions against it.
func (e *DescriptiveEngine) entityInsights(rows []records.SessionRecord) []string {
	scores := make([]float64, len(rows))
	for i, r := range rows {
		scores[i] = r.Score
	}
	avg := mean(scores)

	var out []string
	switch {
	case avg >= e.cfg.PassThreshold:
		out = append(out, "Excellent performance! Keep up the good work.")
	case avg >= e.cfg.PassThreshold-1:
		out = append(out, "Good overall performance. Keep practicing.")
	default:
		out = append(out, "There is room for improvement. Consider reviewing the content.")
	}

	if len(rows) >= 3 {
		latest := make([]records.SessionRecord, len(rows))
		copy(latest, rows)
		sort.SliceStable(latest, func(i, j int) bool { return latest[i].OccurredAt.After(latest[j].OccurredAt) })
		recent := (latest[0].Score + latest[1].Score + latest[2].Score) / 3
		switch {
		case recent > avg:
			out = append(out, "Positive trend: you are improving.")
		case recent < avg:
			out = append(out, "You seem to have had some recent difficulties.")
		}
	}
	return out
}

// ExerciseView is the analysis of a single exercise within a scope.
type ExerciseView struct {
	Exercise      string        `json:"exercise"`
	TotalSessions int           `json:"total_sessions"`
	EntityCount   int           `json:"entity_count"`
	Statistics    Statistics    `json:"statistics"`
	Visualization Visualization `json:"visualization"`
}
