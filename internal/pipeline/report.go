package pipeline

import (
	"time"

	"github.com/blackwell-systems/cohortwatch/internal/analyzer"
	"github.com/blackwell-systems/cohortwatch/internal/insight"
)

// Report is the merged cohort analysis. Every field is always present in
// the encoded form; engines that had no data contribute their empty value.
type Report struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	ReportID      string    `json:"report_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	TotalSessions int       `json:"total_sessions"`

	Statistics    analyzer.Statistics               `json:"statistics"`
	PerExercise   map[string]analyzer.ExerciseStats `json:"per_exercise"`
	Correlations  analyzer.CorrelationSummary       `json:"correlations"`
	Clustering    analyzer.ClusterGroups            `json:"clustering"`
	Prediction    analyzer.Regression               `json:"prediction"`
	Insights      []insight.Insight                 `json:"insights"`
	Ranking       []analyzer.RankedEntity           `json:"ranking"`
	AtRisk        []insight.AtRiskEntity            `json:"at_risk"`
	Visualization analyzer.Visualization            `json:"visualization"`

	ClassificationModel analyzer.Classification   `json:"classification_model"`
	ClusteringModel     analyzer.ClusteringModel  `json:"clustering_model"`
	CorrelationModel    analyzer.CorrelationModel `json:"correlation_model"`
}

// EntityReport is the per-entity analysis.
type EntityReport struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	ReportID      string    `json:"report_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	EntityID      string    `json:"entity_id"`
	EntityLabel   string    `json:"entity_label"`
	TotalSessions int       `json:"total_sessions"`

	analyzer.EntityView
}

// ExerciseReport is the analysis of one exercise within a cohort.
type ExerciseReport struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	ReportID    string    `json:"report_id"`
	GeneratedAt time.Time `json:"generated_at"`

	analyzer.ExerciseView
}

// emptyReport returns the full report schema populated with the no-data
// value of every engine. It uses the stock engines so that a misbehaving
// injected engine cannot break the fallback.
func emptyReport() Report {
	stock := DefaultEngines(analyzer.DefaultConfig(), 0)
	return assemble(stock, nil)
}
