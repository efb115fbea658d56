package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/blackwell-systems/cohortwatch/internal/analyzer"
	"github.com/blackwell-systems/cohortwatch/internal/cache"
	"github.com/blackwell-systems/cohortwatch/internal/records"
)

var reportKeys = []string{
	"success", "message", "report_id", "generated_at", "total_sessions",
	"statistics", "per_exercise", "correlations", "clustering", "prediction",
	"insights", "ranking", "at_risk", "visualization",
	"classification_model", "clustering_model", "correlation_model",
}

var fixedNow = time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

func cohortRows(cohort string) []records.SessionRecord {
	var rows []records.SessionRecord
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := range 12 {
		score := 2.0 + float64(i%2)*4
		rows = append(rows, records.SessionRecord{
			EntityID:              fmt.Sprintf("e%d", i%4),
			EntityLabel:           fmt.Sprintf("Entity %d", i%4),
			CohortID:              cohort,
			ExerciseLabel:         []string{"Algebra", "Geometry", "Fractions"}[i%3],
			DurationSeconds:       60 + i*15,
			Score:                 score,
			AssistantInteractions: i % 5,
			OccurredAt:            base.Add(time.Duration(i) * 24 * time.Hour),
		})
	}
	return rows
}

type countingFetcher struct {
	rows  records.SliceFetcher
	err   error
	calls atomic.Int32
}

func (f *countingFetcher) Fetch(ctx context.Context, scope records.Scope) ([]records.SessionRecord, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows.Fetch(ctx, scope)
}

type panickingRanker struct{}

func (panickingRanker) Rank(*records.Dataset) []analyzer.RankedEntity {
	panic("ranking exploded")
}

func newTestOrchestrator(t *testing.T, f records.Fetcher, opts ...Option) (*Orchestrator, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	var n int
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(m),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("report-%d", n)
		}),
	}
	return New(f, analyzer.DefaultConfig(), 4, append(base, opts...)...), m
}

func keysOf(t *testing.T, v any) map[string]json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestAnalyze_EmptyKeepsKeySet(t *testing.T) {
	o, m := newTestOrchestrator(t, records.SliceFetcher(nil))
	report := o.Analyze(nil)

	assert.True(t, report.Success)
	assert.Equal(t, 0, report.TotalSessions)
	assert.NotEmpty(t, report.Message)

	got := keysOf(t, report)
	assert.Len(t, got, len(reportKeys))
	for _, k := range reportKeys {
		assert.Contains(t, got, k)
	}
	assert.JSONEq(t, "[]", string(got["insights"]))
	assert.JSONEq(t, "[]", string(got["ranking"]))
	assert.JSONEq(t, "[]", string(got["at_risk"]))
	assert.JSONEq(t, "{}", string(got["per_exercise"]))
	assert.False(t, report.ClusteringModel.Available)
	assert.False(t, report.ClassificationModel.Available)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeEmpty)))
}

func TestAnalyze_FullReport(t *testing.T) {
	o, m := newTestOrchestrator(t, records.SliceFetcher(nil))
	report := o.Analyze(cohortRows("c1"))

	require.True(t, report.Success)
	assert.Equal(t, "report-1", report.ReportID)
	assert.Equal(t, fixedNow, report.GeneratedAt)
	assert.Equal(t, 12, report.TotalSessions)
	assert.Len(t, report.PerExercise, 3)
	assert.True(t, report.CorrelationModel.Available)
	assert.True(t, report.ClusteringModel.Available)
	assert.True(t, report.ClassificationModel.Available)
	assert.True(t, report.Prediction.Available)
	assert.NotEmpty(t, report.Ranking)
	assert.Len(t, keysOf(t, report), len(reportKeys))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeOK)))
}

func TestAnalyze_Deterministic(t *testing.T) {
	rows := cohortRows("c1")
	o1, _ := newTestOrchestrator(t, records.SliceFetcher(nil))
	o2, _ := newTestOrchestrator(t, records.SliceFetcher(nil))

	a, err := json.Marshal(o1.Analyze(rows))
	require.NoError(t, err)
	b, err := json.Marshal(o2.Analyze(rows))
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestAnalyze_RecoversEnginePanic(t *testing.T) {
	o, m := newTestOrchestrator(t, records.SliceFetcher(nil),
		WithEngines(Engines{Ranking: panickingRanker{}}))

	report := o.Analyze(cohortRows("c1"))
	assert.False(t, report.Success)
	assert.Contains(t, report.Message, "ranking exploded")
	assert.Equal(t, 0, report.TotalSessions)
	assert.Len(t, keysOf(t, report), len(reportKeys))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomePanic)))
}

func TestAnalyzeCohort_FetchError(t *testing.T) {
	f := &countingFetcher{err: errors.New("database is locked")}
	o, m := newTestOrchestrator(t, f, WithCache(cache.NewTTL(), time.Minute))

	report := o.AnalyzeCohort(context.Background(), "c1")
	assert.False(t, report.Success)
	assert.Contains(t, report.Message, "database is locked")
	assert.Len(t, keysOf(t, report), len(reportKeys))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeFetchError)))

	o.AnalyzeCohort(context.Background(), "c1")
	assert.Equal(t, int32(2), f.calls.Load(), "failed fetches must not be cached")
}

func TestAnalyzeCohort_CachesPerCohort(t *testing.T) {
	rows := append(cohortRows("c1"), cohortRows("c2")[:3]...)
	f := &countingFetcher{rows: rows}
	o, m := newTestOrchestrator(t, f, WithCache(cache.NewTTL(), time.Minute))
	ctx := context.Background()

	first := o.AnalyzeCohort(ctx, "c1")
	second := o.AnalyzeCohort(ctx, "c1")
	assert.Equal(t, first.ReportID, second.ReportID)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 12, first.TotalSessions)

	other := o.AnalyzeCohort(ctx, "c2")
	assert.Equal(t, 3, other.TotalSessions)
	assert.Equal(t, int32(2), f.calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))

	o.Invalidate("c1")
	third := o.AnalyzeCohort(ctx, "c1")
	assert.NotEqual(t, first.ReportID, third.ReportID)
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestAnalyzeCohort_NoCacheByDefault(t *testing.T) {
	f := &countingFetcher{rows: cohortRows("c1")}
	o, _ := newTestOrchestrator(t, f)
	o.AnalyzeCohort(context.Background(), "c1")
	o.AnalyzeCohort(context.Background(), "c1")
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestAnalyzeEntity(t *testing.T) {
	f := &countingFetcher{rows: cohortRows("c1")}
	o, _ := newTestOrchestrator(t, f)

	report := o.AnalyzeEntity(context.Background(), "e1", "c1")
	require.True(t, report.Success)
	assert.Equal(t, "e1", report.EntityID)
	assert.Equal(t, "Entity 1", report.EntityLabel)
	assert.Equal(t, 3, report.TotalSessions)
	assert.Equal(t, 6.0, report.Summary.MeanScore)
	assert.NotEmpty(t, report.PerExercise)
	assert.NotEmpty(t, report.Insights)
}

func TestAnalyzeEntity_Empty(t *testing.T) {
	o, _ := newTestOrchestrator(t, &countingFetcher{})
	report := o.AnalyzeEntity(context.Background(), "ghost", "")

	assert.True(t, report.Success)
	assert.Equal(t, 0, report.TotalSessions)
	assert.Zero(t, report.Summary.MeanScore)
	assert.Contains(t, report.Message, "No sessions")
	assert.NotNil(t, report.PerExercise)
	assert.NotNil(t, report.Progress)
}

func TestAnalyzeEntity_FetchError(t *testing.T) {
	o, _ := newTestOrchestrator(t, &countingFetcher{err: errors.New("boom")})
	report := o.AnalyzeEntity(context.Background(), "e1", "")
	assert.False(t, report.Success)
	assert.Contains(t, report.Message, "boom")
}

func TestAnalyzeExercise(t *testing.T) {
	o, _ := newTestOrchestrator(t, &countingFetcher{rows: cohortRows("c1")})

	report := o.AnalyzeExercise(context.Background(), "c1", "Algebra")
	require.True(t, report.Success)
	assert.Equal(t, "Algebra", report.Exercise)
	assert.Equal(t, 4, report.TotalSessions)
	assert.Equal(t, 4, report.EntityCount)
	assert.Equal(t, 4, report.Statistics.General.TotalSessions)

	missing := o.AnalyzeExercise(context.Background(), "c1", "Calculus")
	assert.False(t, missing.Success)
	assert.Contains(t, missing.Message, "Calculus")
	assert.NotNil(t, missing.Visualization.ScoreDistribution)
}

type explodingFetcher struct{ calls atomic.Int32 }

func (f *explodingFetcher) Fetch(context.Context, records.Scope) ([]records.SessionRecord, error) {
	f.calls.Add(1)
	panic("db driver exploded")
}

func TestAnalyzeCohort_RecoversFetcherPanic(t *testing.T) {
	f := &explodingFetcher{}
	o, m := newTestOrchestrator(t, f, WithCache(cache.NewTTL(), time.Minute))

	var report Report
	require.NotPanics(t, func() { report = o.AnalyzeCohort(context.Background(), "c1") })
	assert.False(t, report.Success)
	assert.Contains(t, report.Message, "db driver exploded")
	assert.Len(t, keysOf(t, report), len(reportKeys))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomePanic)))

	o.AnalyzeCohort(context.Background(), "c1")
	assert.Equal(t, int32(2), f.calls.Load(), "panicked fetches must not be cached")
}

func TestAnalyzeEntity_RecoversFetcherPanic(t *testing.T) {
	o, m := newTestOrchestrator(t, &explodingFetcher{})

	var report EntityReport
	require.NotPanics(t, func() { report = o.AnalyzeEntity(context.Background(), "e1", "c1") })
	assert.False(t, report.Success)
	assert.Equal(t, "e1", report.EntityID)
	assert.Contains(t, report.Message, "db driver exploded")
	assert.NotNil(t, report.PerExercise)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomePanic)))
}

func TestAnalyzeExercise_RecoversFetcherPanic(t *testing.T) {
	o, m := newTestOrchestrator(t, &explodingFetcher{})

	var report ExerciseReport
	require.NotPanics(t, func() { report = o.AnalyzeExercise(context.Background(), "c1", "Algebra") })
	assert.False(t, report.Success)
	assert.Contains(t, report.Message, "db driver exploded")
	assert.Equal(t, "Algebra", report.Exercise)
	assert.NotNil(t, report.Visualization.ScoreDistribution)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomePanic)))
}

func TestOrchestrator_NilFetcher(t *testing.T) {
	o, m := newTestOrchestrator(t, nil)
	ctx := context.Background()

	cohort := o.AnalyzeCohort(ctx, "c1")
	assert.False(t, cohort.Success)
	assert.Contains(t, cohort.Message, errNoFetcher.Error())

	entity := o.AnalyzeEntity(ctx, "e1", "")
	assert.False(t, entity.Success)
	assert.Contains(t, entity.Message, errNoFetcher.Error())

	exercise := o.AnalyzeExercise(ctx, "c1", "Algebra")
	assert.False(t, exercise.Success)
	assert.Contains(t, exercise.Message, errNoFetcher.Error())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.runs.WithLabelValues(OutcomeFetchError)))
}

func TestAnalyzeEntity_SeparatorsInIDs(t *testing.T) {
	rows := records.SliceFetcher{
		{EntityID: "a:b", ExerciseLabel: "Algebra", Score: 6, DurationSeconds: 60},
		{EntityID: "a", CohortID: "b:", ExerciseLabel: "Algebra", Score: 1, DurationSeconds: 60},
	}
	f := &countingFetcher{rows: rows}
	o, _ := newTestOrchestrator(t, f, WithCache(cache.NewTTL(), time.Minute))
	ctx := context.Background()

	first := o.AnalyzeEntity(ctx, "a:b", "")
	second := o.AnalyzeEntity(ctx, "a", "b:")
	assert.Equal(t, "a:b", first.EntityID)
	assert.Equal(t, 6.0, first.Summary.MeanScore)
	assert.Equal(t, "a", second.EntityID)
	assert.Equal(t, 1.0, second.Summary.MeanScore)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestAnalyzeCohort_SharedCacheSeparatesConfigs(t *testing.T) {
	shared := cache.NewTTL()
	f := &countingFetcher{rows: cohortRows("c1")}
	ctx := context.Background()

	strict := analyzer.DefaultConfig()
	strict.PassThreshold = 7
	a := New(f, analyzer.DefaultConfig(), 4, WithCache(shared, time.Minute))
	b := New(f, strict, 4, WithCache(shared, time.Minute))
	c := New(f, analyzer.DefaultConfig(), 4, WithCache(shared, time.Minute))

	ra := a.AnalyzeCohort(ctx, "c1")
	rb := b.AnalyzeCohort(ctx, "c1")
	assert.NotEqual(t, ra.ReportID, rb.ReportID)
	assert.NotEqual(t, ra.Statistics.General.ApprovalRate, rb.Statistics.General.ApprovalRate)
	assert.Equal(t, int32(2), f.calls.Load())

	assert.Equal(t, ra.ReportID, c.AnalyzeCohort(ctx, "c1").ReportID, "equal configs share entries")
	assert.Equal(t, int32(2), f.calls.Load())

	a.Invalidate("")
	assert.Equal(t, rb.ReportID, b.AnalyzeCohort(ctx, "c1").ReportID, "invalidation stays in its namespace")
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestAnalyzeCohort_CustomEnginesGetOwnNamespace(t *testing.T) {
	shared := cache.NewTTL()
	f := &countingFetcher{rows: cohortRows("c1")}
	ctx := context.Background()

	plain := New(f, analyzer.DefaultConfig(), 4, WithCache(shared, time.Minute))
	custom := New(f, analyzer.DefaultConfig(), 4, WithCache(shared, time.Minute),
		WithEngines(Engines{Ranking: panickingRanker{}}))

	require.True(t, plain.AnalyzeCohort(ctx, "c1").Success)
	assert.False(t, custom.AnalyzeCohort(ctx, "c1").Success)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestAnalyze_LogsUnavailableModels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	o, _ := newTestOrchestrator(t, records.SliceFetcher(nil), WithLogger(zap.New(core)))

	o.Analyze(cohortRows("c1")[:1])

	entries := logs.FilterMessage("model unavailable").All()
	require.NotEmpty(t, entries)
	models := make(map[string]bool)
	for _, e := range entries {
		models[e.ContextMap()["model"].(string)] = true
	}
	assert.True(t, models["clustering"])
}
