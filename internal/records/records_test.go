package records

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := SessionRecord{EntityID: "e1", ExerciseLabel: "ex", Score: 4, DurationSeconds: 60}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		mod  func(r *SessionRecord)
	}{
		{"missing entity", func(r *SessionRecord) { r.EntityID = "" }},
		{"missing exercise", func(r *SessionRecord) { r.ExerciseLabel = "" }},
		{"score too high", func(r *SessionRecord) { r.Score = 7.5 }},
		{"negative score", func(r *SessionRecord) { r.Score = -1 }},
		{"negative duration", func(r *SessionRecord) { r.DurationSeconds = -5 }},
		{"negative interactions", func(r *SessionRecord) { r.AssistantInteractions = -1 }},
		{"timestamp in year 1", func(r *SessionRecord) { r.OccurredAt = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC) }},
		{"timestamp before 1970", func(r *SessionRecord) { r.OccurredAt = time.Date(1969, 12, 31, 23, 0, 0, 0, time.UTC) }},
		{"timestamp far in the future", func(r *SessionRecord) { r.OccurredAt = time.Now().AddDate(5, 0, 0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mod(&r)
			err := r.Validate()
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("Validate() = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestValidate_Timestamps(t *testing.T) {
	for _, at := range []time.Time{
		{},
		EarliestOccurredAt,
		time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Now().Add(time.Hour),
	} {
		r := SessionRecord{EntityID: "e1", ExerciseLabel: "ex", Score: 4, OccurredAt: at}
		if err := r.Validate(); err != nil {
			t.Errorf("Validate() with occurred_at %v = %v, want nil", at, err)
		}
	}
}

func TestScope_String(t *testing.T) {
	a := Scope{CohortID: "a entity=", EntityID: ""}.String()
	b := Scope{CohortID: "a", EntityID: " entity="}.String()
	if a == b {
		t.Errorf("distinct scopes render the same: %s", a)
	}
	if got, want := (Scope{CohortID: "c1"}).String(), `cohort="c1" entity=""`; got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}

func TestNewDataset_Empty(t *testing.T) {
	ds := NewDataset(nil)
	if !ds.Empty() {
		t.Error("expected empty dataset")
	}
	if ds != Empty() {
		t.Error("expected canonical empty dataset")
	}
	if ds.Len() != 0 || ds.EntityCount() != 0 {
		t.Errorf("Len=%d EntityCount=%d, want 0/0", ds.Len(), ds.EntityCount())
	}
	if g := ds.ByEntity(); g != nil {
		t.Errorf("ByEntity() = %v, want nil", g)
	}
}

func TestNewDataset_Columns(t *testing.T) {
	ds := NewDataset([]SessionRecord{
		{EntityID: "a", EntityLabel: "Ana", ExerciseLabel: "fire", DurationSeconds: 100, Score: 5, AssistantInteractions: 2},
		{EntityID: "b", ExerciseLabel: "flood", DurationSeconds: 200, Score: 3, AssistantInteractions: 0},
		{EntityID: "a", EntityLabel: "Ana", ExerciseLabel: "flood", DurationSeconds: 300, Score: 6, AssistantInteractions: 4},
	})

	if ds.Len() != 3 {
		t.Fatalf("Len = %d, want 3", ds.Len())
	}
	if ds.EntityCount() != 2 {
		t.Errorf("EntityCount = %d, want 2", ds.EntityCount())
	}
	if got := ds.Durations()[2]; got != 300 {
		t.Errorf("Durations[2] = %v, want 300", got)
	}
	if got := ds.EntityLabels()[1]; got != "b" {
		t.Errorf("label fallback = %q, want %q", got, "b")
	}

	groups := ds.ByEntity()
	if len(groups) != 2 || groups[0].Key != "a" || groups[1].Key != "b" {
		t.Fatalf("ByEntity order = %+v", groups)
	}
	if scores := groups[0].Column(ds.Scores()); len(scores) != 2 || scores[0] != 5 || scores[1] != 6 {
		t.Errorf("entity a scores = %v", scores)
	}

	ex := ds.ByExercise()
	if len(ex) != 2 || ex[0].Key != "fire" || ex[1].Key != "flood" {
		t.Errorf("ByExercise order = %+v", ex)
	}
}

func TestSliceFetcher_Scope(t *testing.T) {
	f := SliceFetcher{
		{EntityID: "a", CohortID: "c1"},
		{EntityID: "b", CohortID: "c1"},
		{EntityID: "a", CohortID: "c2"},
	}
	got, err := f.Fetch(context.Background(), Scope{CohortID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("cohort c1: got %d records, want 2", len(got))
	}
	got, _ = f.Fetch(context.Background(), Scope{CohortID: "c2", EntityID: "a"})
	if len(got) != 1 {
		t.Errorf("cohort c2 entity a: got %d records, want 1", len(got))
	}
	got, _ = f.Fetch(context.Background(), Scope{})
	if len(got) != 3 {
		t.Errorf("unscoped: got %d records, want 3", len(got))
	}
}

func TestLoadJSONDir(t *testing.T) {
	dir := t.TempDir()
	single := `{"entity_id":"a","exercise_label":"fire","score":4.5,"duration_seconds":1800,"occurred_at":"2026-01-15T10:00:00Z"}`
	batch := `[{"entity_id":"b","exercise_label":"fire","score":3},{"entity_id":"c","exercise_label":"flood","score":6}]`
	for name, data := range map[string]string{
		"one.json":  single,
		"many.json": batch,
		"bad.json":  "{not json",
		"notes.txt": "ignored",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	recs, err := LoadJSONDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
}

func TestLoadJSONDir_Missing(t *testing.T) {
	recs, err := LoadJSONDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recs != nil {
		t.Errorf("expected nil, got %v", recs)
	}
}

func TestReadCSV(t *testing.T) {
	in := `entity_id,entity_label,cohort_id,exercise_label,duration_seconds,score,assistant_interactions,occurred_at
a,Ana,c1,fire,1800,4.5,3,2026-01-15T10:00:00Z
b,Bo,c1,flood,2100,3.8,0,2026-01-16
`
	recs, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Score != 4.5 || recs[0].DurationSeconds != 1800 || recs[0].AssistantInteractions != 3 {
		t.Errorf("record 0 = %+v", recs[0])
	}
	want := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	if !recs[1].OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", recs[1].OccurredAt, want)
	}
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("entity_id,score\na,4\n"))
	if err == nil {
		t.Fatal("expected error for missing exercise_label column")
	}
}

func TestReadCSV_BadScore(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("entity_id,exercise_label,score\na,fire,high\n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
