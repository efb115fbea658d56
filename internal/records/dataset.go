package records

// Dataset is the tabular view of an ordered record collection. Columns are
// materialized once; engines read them without copying.
type Dataset struct {
	rows []SessionRecord

	entityIDs   []string
	labels      []string
	exercises   []string
	durations   []float64
	scores      []float64
	assistants  []float64
	entityCount int
}

// empty is the canonical empty dataset.
var empty = &Dataset{}

// Empty returns the canonical empty dataset.
func Empty() *Dataset {
	return empty
}

// NewDataset adapts records into a Dataset. A nil or empty slice returns the
// canonical empty dataset.
func NewDataset(rows []SessionRecord) *Dataset {
	if len(rows) == 0 {
		return empty
	}

	n := len(rows)
	ds := &Dataset{
		rows:       rows,
		entityIDs:  make([]string, n),
		labels:     make([]string, n),
		exercises:  make([]string, n),
		durations:  make([]float64, n),
		scores:     make([]float64, n),
		assistants: make([]float64, n),
	}

	seen := make(map[string]bool)
	for i, r := range rows {
		ds.entityIDs[i] = r.EntityID
		ds.labels[i] = r.Label()
		ds.exercises[i] = r.ExerciseLabel
		ds.durations[i] = float64(r.DurationSeconds)
		ds.scores[i] = r.Score
		ds.assistants[i] = float64(r.AssistantInteractions)
		if !seen[r.EntityID] {
			seen[r.EntityID] = true
			ds.entityCount++
		}
	}
	return ds
}

// Empty reports whether the dataset has no rows.
func (d *Dataset) Empty() bool {
	return d == nil || len(d.rows) == 0
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// EntityCount returns the number of distinct entities.
func (d *Dataset) EntityCount() int {
	if d == nil {
		return 0
	}
	return d.entityCount
}

// Rows returns the underlying records. Callers must not modify them.
func (d *Dataset) Rows() []SessionRecord { return d.rows }

// Scores returns the score column.
func (d *Dataset) Scores() []float64 { return d.scores }

// Durations returns the duration column in seconds.
func (d *Dataset) Durations() []float64 { return d.durations }

// Assistants returns the assistant-interaction column.
func (d *Dataset) Assistants() []float64 { return d.assistants }

// EntityLabels returns the entity label column.
func (d *Dataset) EntityLabels() []string { return d.labels }

// Group is a named subset of dataset rows, identified by row index.
type Group struct {
	Key   string
	Label string
	Rows  []int
}

// Column extracts values for the group's rows from col.
func (g Group) Column(col []float64) []float64 {
	out := make([]float64, len(g.Rows))
	for i, idx := range g.Rows {
		out[i] = col[idx]
	}
	return out
}

// ByEntity groups rows by entity ID in first-seen order.
func (d *Dataset) ByEntity() []Group {
	return d.groupBy(d.entityIDs, d.labels)
}

// ByExercise groups rows by exercise label in first-seen order.
func (d *Dataset) ByExercise() []Group {
	return d.groupBy(d.exercises, d.exercises)
}

func (d *Dataset) groupBy(keys, labels []string) []Group {
	if d.Empty() {
		return nil
	}
	index := make(map[string]int)
	var groups []Group
	for i, k := range keys {
		gi, ok := index[k]
		if !ok {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, Group{Key: k, Label: labels[i]})
		}
		groups[gi].Rows = append(groups[gi].Rows, i)
	}
	return groups
}

// Filter returns a new dataset with the rows for which keep returns true.
func (d *Dataset) Filter(keep func(SessionRecord) bool) *Dataset {
	if d.Empty() {
		return empty
	}
	var out []SessionRecord
	for _, r := range d.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return NewDataset(out)
}
