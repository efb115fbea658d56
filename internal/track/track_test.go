package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/cohortwatch/internal/analyzer"
	"github.com/blackwell-systems/cohortwatch/internal/insight"
	"github.com/blackwell-systems/cohortwatch/internal/pipeline"
	"github.com/blackwell-systems/cohortwatch/internal/store"
)

func report(id string, mean, approval float64, atRisk int) pipeline.Report {
	r := pipeline.Report{
		Success:  true,
		ReportID: id,
		Statistics: analyzer.Statistics{General: analyzer.GeneralStats{
			TotalSessions: 10,
			TotalEntities: 4,
			MeanScore:     mean,
			ApprovalRate:  approval,
		}},
		PerExercise: map[string]analyzer.ExerciseStats{
			"Algebra":  {MeanScore: 3.2},
			"Geometry": {MeanScore: 5.1},
		},
	}
	for range atRisk {
		r.AtRisk = append(r.AtRisk, insight.AtRiskEntity{EntityID: "x", EntityLabel: "X", Reason: "low average (2.00)"})
	}
	return r
}

func openTest(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMetrics(t *testing.T) {
	m := Metrics(report("r1", 4.5, 0.6, 2), 4)
	assert.Equal(t, 10.0, m[MetricSessions])
	assert.Equal(t, 60.0, m[MetricApprovalPct])
	assert.Equal(t, 2.0, m[MetricAtRisk])
	assert.Equal(t, 1.0, m[MetricExercisesFlagged])
	assert.Len(t, m, len(DisplayOrder))
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "unchanged", Direction(MetricMeanScore, 0))
	assert.Equal(t, "improved", Direction(MetricMeanScore, 0.5))
	assert.Equal(t, "regressed", Direction(MetricMeanScore, -0.5))
	assert.Equal(t, "improved", Direction(MetricAtRisk, -1))
	assert.Equal(t, "regressed", Direction(MetricAtRisk, 1))
	assert.Equal(t, "improved", Direction("unknown_metric", 1))
}

func TestRecordAndCompare(t *testing.T) {
	db := openTest(t)

	first, err := Record(db, report("r1", 4.0, 0.5, 2), "c1", "track", "test", 4)
	require.NoError(t, err)
	assert.Equal(t, "r1", first.ReportID)

	diff, err := Compare(db, first, 1)
	require.NoError(t, err)
	assert.Nil(t, diff, "first snapshot has nothing to compare against")

	rows, err := db.GetAtRisk(first.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// A snapshot for another cohort must not interfere.
	_, err = Record(db, report("other", 1, 0.1, 5), "c2", "track", "test", 4)
	require.NoError(t, err)

	second, err := Record(db, report("r2", 4.6, 0.7, 1), "c1", "track", "test", 4)
	require.NoError(t, err)

	diff, err = Compare(db, second, 1)
	require.NoError(t, err)
	require.NotNil(t, diff)
	assert.Equal(t, first.ID, diff.Previous.ID)

	byName := map[string]store.MetricDelta{}
	for _, d := range diff.Deltas {
		byName[d.Name] = d
	}
	assert.Equal(t, "improved", byName[MetricMeanScore].Direction)
	assert.InDelta(t, 20.0, byName[MetricApprovalPct].Delta, 1e-9)
	assert.Equal(t, "improved", byName[MetricAtRisk].Direction)
	assert.Equal(t, "unchanged", byName[MetricSessions].Direction)
}

func TestHistory(t *testing.T) {
	db := openTest(t)
	for i, mean := range []float64{3.0, 3.5, 4.0} {
		_, err := Record(db, report("r", mean, 0.5, i), "c1", "track", "test", 4)
		require.NoError(t, err)
	}

	entries, err := History(db, "c1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 3.5, entries[0].Metrics[MetricMeanScore], "oldest first")
	assert.Equal(t, 4.0, entries[1].Metrics[MetricMeanScore])
}
