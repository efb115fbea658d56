package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blackwell-systems/cohortwatch/internal/analyzer"
	"github.com/blackwell-systems/cohortwatch/internal/insight"
	"github.com/blackwell-systems/cohortwatch/internal/pipeline"
	"github.com/blackwell-systems/cohortwatch/internal/store"
)

// Analyzer is the subset of the pipeline orchestrator the tools call.
type Analyzer interface {
	AnalyzeCohort(ctx context.Context, cohortID string) pipeline.Report
	AnalyzeEntity(ctx context.Context, entityID, cohortID string) pipeline.EntityReport
	AnalyzeExercise(ctx context.Context, cohortID, exercise string) pipeline.ExerciseReport
}

// CohortLister enumerates stored cohorts.
type CohortLister interface {
	ListCohorts(ctx context.Context) ([]store.CohortSummary, error)
}

// AtRiskResult lists the entities flagged in a cohort.
type AtRiskResult struct {
	CohortID string                 `json:"cohort_id"`
	Total    int                    `json:"total"`
	Entities []insight.AtRiskEntity `json:"entities"`
}

// RankingResult holds the top-N entities of a cohort.
type RankingResult struct {
	CohortID string                  `json:"cohort_id"`
	Entities []analyzer.RankedEntity `json:"entities"`
}

// InsightsResult holds the ranked insights of a cohort.
type InsightsResult struct {
	CohortID string            `json:"cohort_id"`
	Insights []insight.Insight `json:"insights"`
}

// CohortsResult lists stored cohorts.
type CohortsResult struct {
	Cohorts []store.CohortSummary `json:"cohorts"`
}

var (
	noArgsSchema   = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
	cohortSchema   = json.RawMessage(`{"type":"object","properties":{"cohort_id":{"type":"string","description":"Cohort to analyze (empty for all sessions)"}},"additionalProperties":false}`)
	rankingSchema  = json.RawMessage(`{"type":"object","properties":{"cohort_id":{"type":"string","description":"Cohort to rank"},"n":{"type":"integer","description":"Number of entities to return (default 10)"}},"additionalProperties":false}`)
	entitySchema   = json.RawMessage(`{"type":"object","properties":{"entity_id":{"type":"string","description":"Entity to analyze"},"cohort_id":{"type":"string","description":"Optional cohort restriction"}},"required":["entity_id"],"additionalProperties":false}`)
	exerciseSchema = json.RawMessage(`{"type":"object","properties":{"cohort_id":{"type":"string","description":"Cohort to analyze"},"exercise":{"type":"string","description":"Exercise label"}},"required":["exercise"],"additionalProperties":false}`)
)

// addTools registers every MCP tool handler on s.
func addTools(s *Server) {
	s.registerTool(toolDef{
		Name:        "analyze_cohort",
		Description: "Full analytics report for a cohort: statistics, correlations, clustering, prediction, insights, ranking and at-risk entities.",
		InputSchema: cohortSchema,
		Handler:     s.handleAnalyzeCohort,
	})
	s.registerTool(toolDef{
		Name:        "analyze_entity",
		Description: "Summary, per-exercise breakdown and progress for one entity.",
		InputSchema: entitySchema,
		Handler:     s.handleAnalyzeEntity,
	})
	s.registerTool(toolDef{
		Name:        "analyze_exercise",
		Description: "Statistics and difficulty for one exercise within a cohort.",
		InputSchema: exerciseSchema,
		Handler:     s.handleAnalyzeExercise,
	})
	s.registerTool(toolDef{
		Name:        "at_risk_entities",
		Description: "Entities with a low mean score or an unusual mean session duration.",
		InputSchema: cohortSchema,
		Handler:     s.handleAtRisk,
	})
	s.registerTool(toolDef{
		Name:        "rank_entities",
		Description: "Top N entities by composite performance score.",
		InputSchema: rankingSchema,
		Handler:     s.handleRankEntities,
	})
	s.registerTool(toolDef{
		Name:        "cohort_insights",
		Description: "Automated findings for a cohort, most severe first.",
		InputSchema: cohortSchema,
		Handler:     s.handleInsights,
	})
	s.registerTool(toolDef{
		Name:        "list_cohorts",
		Description: "Stored cohorts with session, entity and exercise counts.",
		InputSchema: noArgsSchema,
		Handler:     s.handleListCohorts,
	})
}

// decodeArgs unmarshals args into v, treating empty and null as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

type cohortArgs struct {
	CohortID string `json:"cohort_id"`
}

// cohortReport analyzes the cohort named in args and surfaces degraded
// reports as errors.
func (s *Server) cohortReport(ctx context.Context, args json.RawMessage) (string, pipeline.Report, error) {
	var p cohortArgs
	if err := decodeArgs(args, &p); err != nil {
		return "", pipeline.Report{}, err
	}
	r := s.analyzer.AnalyzeCohort(ctx, p.CohortID)
	if !r.Success {
		return p.CohortID, r, errors.New(r.Message)
	}
	return p.CohortID, r, nil
}

func (s *Server) handleAnalyzeCohort(ctx context.Context, args json.RawMessage) (any, error) {
	_, r, err := s.cohortReport(ctx, args)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Server) handleAnalyzeEntity(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		EntityID string `json:"entity_id"`
		CohortID string `json:"cohort_id"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.EntityID) == "" {
		return nil, errors.New("entity_id is required")
	}
	r := s.analyzer.AnalyzeEntity(ctx, p.EntityID, p.CohortID)
	if !r.Success {
		return nil, errors.New(r.Message)
	}
	return r, nil
}

func (s *Server) handleAnalyzeExercise(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		CohortID string `json:"cohort_id"`
		Exercise string `json:"exercise"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Exercise) == "" {
		return nil, errors.New("exercise is required")
	}
	r := s.analyzer.AnalyzeExercise(ctx, p.CohortID, p.Exercise)
	if !r.Success {
		return nil, errors.New(r.Message)
	}
	return r, nil
}

func (s *Server) handleAtRisk(ctx context.Context, args json.RawMessage) (any, error) {
	cohort, r, err := s.cohortReport(ctx, args)
	if err != nil {
		return nil, err
	}
	return AtRiskResult{CohortID: cohort, Total: len(r.AtRisk), Entities: r.AtRisk}, nil
}

func (s *Server) handleRankEntities(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		CohortID string `json:"cohort_id"`
		N        *int   `json:"n"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	n := 10
	if p.N != nil && *p.N > 0 {
		n = *p.N
	}
	if n > 50 {
		n = 50
	}

	r := s.analyzer.AnalyzeCohort(ctx, p.CohortID)
	if !r.Success {
		return nil, errors.New(r.Message)
	}
	ranked := r.Ranking
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return RankingResult{CohortID: p.CohortID, Entities: ranked}, nil
}

func (s *Server) handleInsights(ctx context.Context, args json.RawMessage) (any, error) {
	cohort, r, err := s.cohortReport(ctx, args)
	if err != nil {
		return nil, err
	}
	return InsightsResult{CohortID: cohort, Insights: r.Insights}, nil
}

func (s *Server) handleListCohorts(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.cohorts == nil {
		return nil, errors.New("no session store configured")
	}
	cohorts, err := s.cohorts.ListCohorts(ctx)
	if err != nil {
		return nil, err
	}
	if cohorts == nil {
		cohorts = []store.CohortSummary{}
	}
	return CohortsResult{Cohorts: cohorts}, nil
}
