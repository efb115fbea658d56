package analyzer

import (
	"sort"
	"time"

	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// HistogramBin counts sessions with one exact score value.
type HistogramBin struct {
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// ExercisePoint is the per-exercise bar-chart point.
type ExercisePoint struct {
	Exercise            string  `json:"exercise"`
	MeanScore           float64 `json:"mean_score"`
	MeanDurationMinutes float64 `json:"mean_duration_minutes"`
}

// TimeSeries is a contiguous daily series.
type TimeSeries struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}

// ScatterPoint is one session projected for plotting.
type ScatterPoint struct {
	DurationMinutes float64 `json:"duration_minutes"`
	Score           float64 `json:"score"`
	Exercise        string  `json:"exercise"`
	Entity          string  `json:"entity"`
}

// Visualization is the chart-ready projection of a dataset.
type Visualization struct {
	ScoreDistribution []HistogramBin  `json:"score_distribution"`
	ByExercise        []ExercisePoint `json:"by_exercise"`

	// DailyMeanScore spans first to last session day; days without
	// sessions are 0.
	DailyMeanScore TimeSeries     `json:"daily_mean_score"`
	Scatter        []ScatterPoint `json:"scatter"`
}

// EmptyVisualization returns the no-data projection with empty, non-nil
// collections.
func EmptyVisualization() Visualization {
	return Visualization{
		ScoreDistribution: []HistogramBin{},
		ByExercise:        []ExercisePoint{},
		DailyMeanScore:    TimeSeries{Dates: []string{}, Values: []float64{}},
		Scatter:           []ScatterPoint{},
	}
}

// VisualizationEngine reshapes datasets into chart series.
type VisualizationEngine struct{}

// NewVisualizationEngine returns a VisualizationEngine.
func NewVisualizationEngine() *VisualizationEngine { return &VisualizationEngine{} }

// Prepare builds every chart series for ds.
func (e *VisualizationEngine) Prepare(ds *records.Dataset) Visualization {
	v := EmptyVisualization()
	if ds.Empty() {
		return v
	}

	counts := make(map[float64]int)
	for _, s := range ds.Scores() {
		counts[finite(s)]++
	}
	for score, c := range counts {
		v.ScoreDistribution = append(v.ScoreDistribution, HistogramBin{Score: score, Count: c})
	}
	sort.Slice(v.ScoreDistribution, func(i, j int) bool {
		return v.ScoreDistribution[i].Score < v.ScoreDistribution[j].Score
	})

	for _, g := range ds.ByExercise() {
		v.ByExercise = append(v.ByExercise, ExercisePoint{
			Exercise:            g.Key,
			MeanScore:           round(mean(g.Column(ds.Scores())), 4),
			MeanDurationMinutes: round(minutes(mean(g.Column(ds.Durations()))), 4),
		})
	}
	sort.Slice(v.ByExercise, func(i, j int) bool { return v.ByExercise[i].Exercise < v.ByExercise[j].Exercise })

	v.DailyMeanScore = dailyMean(ds.Rows())

	for _, r := range ds.Rows() {
		v.Scatter = append(v.Scatter, ScatterPoint{
			DurationMinutes: round(minutes(float64(r.DurationSeconds)), 4),
			Score:           finite(r.Score),
			Exercise:        r.ExerciseLabel,
			Entity:          r.Label(),
		})
	}
	return v
}

// maxDailyPoints bounds the daily series to its most recent days.
const maxDailyPoints = 3660

// dailyMean resamples scores to UTC days. Records without a timestamp are
// left out of the series.
func dailyMean(rows []records.SessionRecord) TimeSeries {
	ts := TimeSeries{Dates: []string{}, Values: []float64{}}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	var first, last time.Time
	for _, r := range rows {
		if r.OccurredAt.IsZero() {
			continue
		}
		day := truncateDay(r.OccurredAt)
		key := day.Format(time.DateOnly)
		sums[key] += r.Score
		counts[key]++
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}
	if first.IsZero() {
		return ts
	}
	if last.Sub(first) >= maxDailyPoints*24*time.Hour {
		first = last.AddDate(0, 0, -(maxDailyPoints - 1))
	}

	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		var v float64
		if c := counts[key]; c > 0 {
			v = finite(sums[key] / float64(c))
		}
		ts.Dates = append(ts.Dates, key)
		ts.Values = append(ts.Values, round(v, 4))
	}
	return ts
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
