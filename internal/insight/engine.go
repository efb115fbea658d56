package insight

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// Engine runs all registered rules against a Context and flags at-risk
// entities.
type Engine struct {
	rules         []Rule
	passThreshold float64
	detector      *Detector
}

// NewEngine creates an engine with all built-in rules registered.
// passThreshold drives the approval and exercise rules; atRiskThreshold is
// the entity mean score below which an entity is flagged.
func NewEngine(passThreshold, atRiskThreshold float64) *Engine {
	return &Engine{
		rules: []Rule{
			ApprovalRate,
			ScoreVariability,
			LowExercisePerformance,
			LowAssistantUse,
		},
		passThreshold: passThreshold,
		detector:      NewDetector(atRiskThreshold),
	}
}

// Run executes all registered rules against ctx and returns the insights
// ordered by priority, most severe first.
func (e *Engine) Run(ctx *Context) []Insight {
	all := []Insight{}
	for _, rule := range e.rules {
		all = append(all, rule(ctx)...)
	}
	return RankInsights(all)
}

// Generate builds a Context from ds and runs the rules. An empty dataset
// yields no insights.
func (e *Engine) Generate(ds *records.Dataset) []Insight {
	if ds.Empty() {
		return []Insight{}
	}
	return e.Run(NewContext(ds, e.passThreshold))
}

// AtRisk delegates to the engine's Detector.
func (e *Engine) AtRisk(ds *records.Dataset) []AtRiskEntity {
	return e.detector.Detect(ds)
}

// RankInsights sorts insights by priority; equal priorities keep rule order.
func RankInsights(insights []Insight) []Insight {
	sorted := make([]Insight, len(insights))
	copy(sorted, insights)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}

// NewContext computes the rule inputs from ds.
func NewContext(ds *records.Dataset, passThreshold float64) *Context {
	ctx := &Context{TotalSessions: ds.Len(), PassThreshold: passThreshold}
	if ds.Empty() {
		return ctx
	}

	scores := ds.Scores()
	var passed int
	for _, s := range scores {
		if s >= passThreshold {
			passed++
		}
	}
	ctx.ApprovalRate = float64(passed) / float64(len(scores))
	if len(scores) >= 2 {
		ctx.ScoreStd = stat.StdDev(scores, nil)
		ctx.ScoreStdDefined = true
	}
	ctx.MeanAssistant = stat.Mean(ds.Assistants(), nil)

	for _, g := range ds.ByExercise() {
		ctx.Exercises = append(ctx.Exercises, ExerciseMean{
			Exercise: g.Key,
			Mean:     stat.Mean(g.Column(scores), nil),
			Sessions: len(g.Rows),
		})
	}
	return ctx
}
