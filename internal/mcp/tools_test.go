package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blackwell-systems/cohortwatch/internal/analyzer"
	"github.com/blackwell-systems/cohortwatch/internal/pipeline"
	"github.com/blackwell-systems/cohortwatch/internal/records"
	"github.com/blackwell-systems/cohortwatch/internal/store"
)

func fixtureRows() []records.SessionRecord {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var rows []records.SessionRecord
	for i := range 12 {
		rows = append(rows, records.SessionRecord{
			EntityID:              fmt.Sprintf("e%d", i%4),
			EntityLabel:           fmt.Sprintf("Entity %d", i%4),
			CohortID:              "c1",
			ExerciseLabel:         []string{"Algebra", "Geometry", "Fractions"}[i%3],
			DurationSeconds:       60 + i*15,
			Score:                 float64(1 + i%4*2),
			AssistantInteractions: i % 5,
			OccurredAt:            base.Add(time.Duration(i) * time.Hour),
		})
	}
	return rows
}

// newTestServer builds a Server over an in-memory store holding rows.
func newTestServer(t *testing.T, rows []records.SessionRecord) *Server {
	t.Helper()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if len(rows) > 0 {
		_, err = db.InsertSessions(context.Background(), "", rows)
		require.NoError(t, err)
	}
	orch := pipeline.New(db, analyzer.DefaultConfig(), 4)
	return NewServer(orch, db, "test", zaptest.NewLogger(t))
}

// invoke calls the named tool handler directly and returns its typed result.
func invoke(s *Server, name string, args string) (any, error) {
	i, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return s.tools[i].Handler(context.Background(), json.RawMessage(args))
}

func TestAnalyzeCohort(t *testing.T) {
	s := newTestServer(t, fixtureRows())
	got, err := invoke(s, "analyze_cohort", `{"cohort_id":"c1"}`)
	require.NoError(t, err)
	r, ok := got.(pipeline.Report)
	require.True(t, ok, "got %T", got)
	assert.True(t, r.Success)
	assert.Equal(t, 12, r.TotalSessions)
	assert.Len(t, r.PerExercise, 3)
}

func TestAnalyzeCohort_Unknown(t *testing.T) {
	s := newTestServer(t, fixtureRows())
	got, err := invoke(s, "analyze_cohort", `{"cohort_id":"missing"}`)
	require.NoError(t, err)
	assert.Equal(t, 0, got.(pipeline.Report).TotalSessions)
}

func TestAnalyzeCohort_BadArgs(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := invoke(s, "analyze_cohort", `{"cohort_id":5}`)
	assert.ErrorContains(t, err, "invalid arguments")
}

func TestAnalyzeEntity(t *testing.T) {
	s := newTestServer(t, fixtureRows())
	got, err := invoke(s, "analyze_entity", `{"entity_id":"e1","cohort_id":"c1"}`)
	require.NoError(t, err)
	r := got.(pipeline.EntityReport)
	assert.Equal(t, "e1", r.EntityID)
	assert.Equal(t, 3, r.TotalSessions)

	_, err = invoke(s, "analyze_entity", `{"entity_id":"  "}`)
	assert.EqualError(t, err, "entity_id is required")
}

func TestAnalyzeExercise(t *testing.T) {
	s := newTestServer(t, fixtureRows())
	got, err := invoke(s, "analyze_exercise", `{"cohort_id":"c1","exercise":"Algebra"}`)
	require.NoError(t, err)
	assert.True(t, got.(pipeline.ExerciseReport).Success)

	_, err = invoke(s, "analyze_exercise", `{"cohort_id":"c1","exercise":"Calculus"}`)
	assert.ErrorContains(t, err, "Calculus")
}

func TestAtRiskEntities(t *testing.T) {
	s := newTestServer(t, fixtureRows())
	got, err := invoke(s, "at_risk_entities", `{"cohort_id":"c1"}`)
	require.NoError(t, err)
	res := got.(AtRiskResult)
	assert.Equal(t, "c1", res.CohortID)
	assert.Equal(t, len(res.Entities), res.Total)
	// e0 always scores 1.
	require.NotEmpty(t, res.Entities)
	assert.Equal(t, "e0", res.Entities[0].EntityID)
}

func TestRankEntities(t *testing.T) {
	s := newTestServer(t, fixtureRows())

	got, err := invoke(s, "rank_entities", `{"cohort_id":"c1","n":2}`)
	require.NoError(t, err)
	res := got.(RankingResult)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, "e3", res.Entities[0].EntityID)

	got, err = invoke(s, "rank_entities", `{"cohort_id":"c1"}`)
	require.NoError(t, err)
	assert.Len(t, got.(RankingResult).Entities, 4)
}

func TestCohortInsights(t *testing.T) {
	s := newTestServer(t, fixtureRows())
	got, err := invoke(s, "cohort_insights", `{"cohort_id":"c1"}`)
	require.NoError(t, err)
	res := got.(InsightsResult)
	require.NotEmpty(t, res.Insights)
	for i := 1; i < len(res.Insights); i++ {
		assert.LessOrEqual(t, res.Insights[i-1].Priority, res.Insights[i].Priority)
	}
}

func TestListCohorts(t *testing.T) {
	s := newTestServer(t, fixtureRows())
	got, err := invoke(s, "list_cohorts", `null`)
	require.NoError(t, err)
	res := got.(CohortsResult)
	require.Len(t, res.Cohorts, 1)
	assert.Equal(t, "c1", res.Cohorts[0].CohortID)
	assert.Equal(t, 12, res.Cohorts[0].Sessions)
	assert.Equal(t, 4, res.Cohorts[0].Entities)
}

func TestListCohorts_NoStore(t *testing.T) {
	s := newEmptyServer()
	_, err := invoke(s, "list_cohorts", `{}`)
	assert.Error(t, err)
}
