// Package pipeline runs every analytics engine over a scoped record set and
// merges the results into one report.
package pipeline

import (
	"github.com/blackwell-systems/cohortwatch/internal/analyzer"
	"github.com/blackwell-systems/cohortwatch/internal/insight"
	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// DescriptiveStats computes summary statistics.
type DescriptiveStats interface {
	Describe(ds *records.Dataset) analyzer.Statistics
	ByExercise(ds *records.Dataset) map[string]analyzer.ExerciseStats
	DescribeEntity(ds *records.Dataset) analyzer.EntityView
}

// CorrelationAnalyzer computes pairwise correlations.
type CorrelationAnalyzer interface {
	Correlate(ds *records.Dataset) analyzer.CorrelationModel
}

// InsightGenerator produces findings and at-risk entities.
type InsightGenerator interface {
	Generate(ds *records.Dataset) []insight.Insight
	AtRisk(ds *records.Dataset) []insight.AtRiskEntity
}

// Ranker orders entities by composite score.
type Ranker interface {
	Rank(ds *records.Dataset) []analyzer.RankedEntity
}

// ClusteringEngine groups entities by behaviour.
type ClusteringEngine interface {
	Cluster(ds *records.Dataset) analyzer.ClusteringModel
}

// PredictiveModel fits the regression and pass/fail classifiers.
type PredictiveModel interface {
	Regress(ds *records.Dataset) analyzer.Regression
	Classify(ds *records.Dataset) analyzer.Classification
}

// VisualizationPreparer projects the dataset into chart series.
type VisualizationPreparer interface {
	Prepare(ds *records.Dataset) analyzer.Visualization
}

// Engines is the set of engines an Orchestrator runs. Nil fields are filled
// with the defaults from DefaultEngines.
type Engines struct {
	Stats         DescriptiveStats
	Correlation   CorrelationAnalyzer
	Insights      InsightGenerator
	Ranking       Ranker
	Clustering    ClusteringEngine
	Predictive    PredictiveModel
	Visualization VisualizationPreparer
}

// DefaultEngines builds the stock engines from cfg. atRiskThreshold is the
// entity mean score below which an entity is flagged.
func DefaultEngines(cfg analyzer.Config, atRiskThreshold float64) Engines {
	if atRiskThreshold <= 0 {
		atRiskThreshold = records.PassThreshold
	}
	pass := cfg.PassThreshold
	if pass <= 0 {
		pass = records.PassThreshold
	}
	return Engines{
		Stats:         analyzer.NewDescriptiveEngine(cfg),
		Correlation:   analyzer.NewCorrelationEngine(),
		Insights:      insight.NewEngine(pass, atRiskThreshold),
		Ranking:       analyzer.NewRankingEngine(cfg),
		Clustering:    analyzer.NewClusteringEngine(cfg),
		Predictive:    analyzer.NewPredictiveEngine(cfg),
		Visualization: analyzer.NewVisualizationEngine(),
	}
}

// merge fills nil fields of e from d.
func (e Engines) merge(d Engines) Engines {
	if e.Stats == nil {
		e.Stats = d.Stats
	}
	if e.Correlation == nil {
		e.Correlation = d.Correlation
	}
	if e.Insights == nil {
		e.Insights = d.Insights
	}
	if e.Ranking == nil {
		e.Ranking = d.Ranking
	}
	if e.Clustering == nil {
		e.Clustering = d.Clustering
	}
	if e.Predictive == nil {
		e.Predictive = d.Predictive
	}
	if e.Visualization == nil {
		e.Visualization = d.Visualization
	}
	return e
}
