package analyzer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// minCorrelationRecords is the smallest dataset with a defined p-value.
const minCorrelationRecords = 3

// Strength buckets |r|.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// Correlation is a Pearson coefficient with its two-tailed significance.
type Correlation struct {
	R              float64  `json:"r"`
	PValue         float64  `json:"p_value"`
	Significant    bool     `json:"significant"`
	Strength       Strength `json:"strength"`
	Interpretation string   `json:"interpretation"`
}

// CorrelationPairs holds the three variable pairs of interest.
type CorrelationPairs struct {
	DurationScore     Correlation `json:"duration_score"`
	AssistantScore    Correlation `json:"assistant_score"`
	DurationAssistant Correlation `json:"duration_assistant"`
}

// CorrelationModel is the full-precision correlation analysis.
type CorrelationModel struct {
	Availability
	Pairs CorrelationPairs `json:"pairs"`

	// Matrix is the symmetric Pearson matrix keyed by column name.
	Matrix map[string]map[string]float64 `json:"matrix"`

	// Summary lists the significant correlations in prose.
	Summary []string `json:"summary"`

	Recommendations []string `json:"recommendations"`
}

// CorrelationSummary is the rounded view of the two score correlations plus
// rule-based recommendations.
type CorrelationSummary struct {
	Availability
	DurationScore   Correlation `json:"duration_score"`
	AssistantScore  Correlation `json:"assistant_score"`
	Recommendations []string    `json:"recommendations"`
}

// matrixColumns orders the correlation matrix.
var matrixColumns = []string{"duration_seconds", "score", "assistant_interactions"}

// CorrelationEngine computes Pearson correlations between duration, score
// and assistant usage.
type CorrelationEngine struct{}

// NewCorrelationEngine returns a CorrelationEngine.
func NewCorrelationEngine() *CorrelationEngine { return &CorrelationEngine{} }

// Correlate analyzes ds. Fewer than three records yields an unavailable
// model.
func (e *CorrelationEngine) Correlate(ds *records.Dataset) CorrelationModel {
	if ds.Len() < minCorrelationRecords {
		return CorrelationModel{
			Availability: unavailable(ErrInsufficientData,
				fmt.Sprintf("at least %d sessions are required to compute correlations", minCorrelationRecords)),
			Matrix:          map[string]map[string]float64{},
			Summary:         []string{},
			Recommendations: []string{},
		}
	}

	dur, score, assist := ds.Durations(), ds.Scores(), ds.Assistants()
	pairs := CorrelationPairs{
		DurationScore:     describePair(dur, score, "duration", "score"),
		AssistantScore:    describePair(assist, score, "assistant use", "score"),
		DurationAssistant: describePair(dur, assist, "duration", "assistant use"),
	}

	cols := map[string][]float64{
		"duration_seconds":       dur,
		"score":                  score,
		"assistant_interactions": assist,
	}
	matrix := make(map[string]map[string]float64, len(matrixColumns))
	for _, a := range matrixColumns {
		row := make(map[string]float64, len(matrixColumns))
		for _, b := range matrixColumns {
			if a == b {
				row[b] = 1
				continue
			}
			r, _ := Pearson(cols[a], cols[b])
			row[b] = r
		}
		matrix[a] = row
	}

	return CorrelationModel{
		Availability:    availableResult(),
		Pairs:           pairs,
		Matrix:          matrix,
		Summary:         summarize(pairs),
		Recommendations: recommend(pairs.DurationScore.R, pairs.AssistantScore.R),
	}
}

// Overview returns the rounded two-pair view of m.
func (m CorrelationModel) Overview() CorrelationSummary {
	if !m.Available {
		return CorrelationSummary{Availability: m.Availability, Recommendations: []string{}}
	}
	roundPair := func(c Correlation) Correlation {
		c.R = round(c.R, 3)
		c.PValue = round(c.PValue, 4)
		return c
	}
	return CorrelationSummary{
		Availability:    m.Availability,
		DurationScore:   roundPair(m.Pairs.DurationScore),
		AssistantScore:  roundPair(m.Pairs.AssistantScore),
		Recommendations: m.Recommendations,
	}
}

// Pearson returns the correlation coefficient of x and y and its two-tailed
// p-value under a Student t distribution with n−2 degrees of freedom. It is
// symmetric in its arguments. Constant input has no defined correlation and
// reports r=0, p=1.
func Pearson(x, y []float64) (r, p float64) {
	n := len(x)
	if n != len(y) || n < minCorrelationRecords {
		return 0, 1
	}
	r = stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, 1
	}
	r = math.Max(-1, math.Min(1, r))
	if math.Abs(r) >= 1 {
		return r, 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = finite(2 * dist.Survival(math.Abs(t)))
	return r, math.Min(p, 1)
}

// Correlate computes the Pearson correlation of x and y with strength and
// significance, but no interpretation text.
func Correlate(x, y []float64) Correlation {
	r, p := Pearson(x, y)
	return Correlation{R: r, PValue: p, Significant: p < 0.05, Strength: strengthOf(r)}
}

func describePair(x, y []float64, nameX, nameY string) Correlation {
	c := Correlate(x, y)
	c.Interpretation = interpret(c, nameX, nameY)
	return c
}

func strengthOf(r float64) Strength {
	a := math.Abs(r)
	switch {
	case a < 0.3:
		return StrengthWeak
	case a < 0.7:
		return StrengthModerate
	default:
		return StrengthStrong
	}
}

func interpret(c Correlation, x, y string) string {
	switch {
	case !c.Significant:
		return fmt.Sprintf("No significant correlation between %s and %s (p=%.3f)", x, y, c.PValue)
	case c.R > 0:
		return fmt.Sprintf("Positive correlation: higher %s, higher %s (p=%.3f)", x, y, c.PValue)
	default:
		return fmt.Sprintf("Negative correlation: higher %s, lower %s (p=%.3f)", x, y, c.PValue)
	}
}

func summarize(p CorrelationPairs) []string {
	var out []string
	for _, c := range []Correlation{p.DurationScore, p.AssistantScore, p.DurationAssistant} {
		if c.Significant {
			out = append(out, fmt.Sprintf("%s - strength: %s", c.Interpretation, c.Strength))
		}
	}
	if len(out) == 0 {
		out = append(out, "No statistically significant correlations found (p < 0.05)")
	}
	return out
}

// recommend derives advice from the duration and assistant correlations
// with score.
func recommend(durationR, assistantR float64) []string {
	var out []string
	switch {
	case durationR < -0.3:
		out = append(out, "Faster entities tend to score higher. Consider trimming content to cut unnecessary time.")
	case durationR > 0.3:
		out = append(out, "More time spent is associated with better results. Entities may benefit from more time to explore.")
	}
	switch {
	case assistantR > 0.3:
		out = append(out, "Assistant interactions are associated with better performance. Encourage entities to use the assistant.")
	case assistantR < -0.3:
		out = append(out, "Heavy assistant use is associated with lower scores. This may signal confusion; review content clarity.")
	}
	if len(out) == 0 {
		out = append(out, "No strong correlations found. Results are mixed.")
	}
	return out
}
