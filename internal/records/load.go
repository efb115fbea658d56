package records

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoadJSON reads a file holding a JSON array of session records.
func LoadJSON(path string) ([]SessionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []SessionRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return recs, nil
}

// LoadJSONDir reads every .json file in dir. Each file may hold a single
// record or an array of records. Files that fail to parse are skipped and a
// missing directory yields no records.
func LoadJSONDir(dir string) ([]SessionRecord, error) {
	batches, err := parseJSONDir[recordBatch](dir)
	if err != nil {
		return nil, err
	}
	var out []SessionRecord
	for _, b := range batches {
		out = append(out, b...)
	}
	return out, nil
}

// recordBatch accepts either one JSON object or an array of them.
type recordBatch []SessionRecord

func (b *recordBatch) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var recs []SessionRecord
		if err := json.Unmarshal(data, &recs); err != nil {
			return err
		}
		*b = recs
		return nil
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*b = recordBatch{rec}
	return nil
}

// parseJSONDir reads all .json files from a directory and unmarshals them
// into a slice of the given type. Skips files that fail to parse.
func parseJSONDir[T any](dir string) ([]T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var results []T
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}
		results = append(results, item)
	}
	return results, nil
}

// LoadCSV reads a CSV file whose first row names the columns. Recognised
// columns match the JSON field names; entity_id, exercise_label and score are
// required and the rest default to zero values.
func LoadCSV(path string) ([]SessionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses header-driven CSV records from r. Timestamps are RFC 3339
// or YYYY-MM-DD.
func ReadCSV(r io.Reader) ([]SessionRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"entity_id", "exercise_label", "score"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []SessionRecord
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec := SessionRecord{
			EntityID:      get(row, "entity_id"),
			EntityLabel:   get(row, "entity_label"),
			CohortID:      get(row, "cohort_id"),
			ExerciseLabel: get(row, "exercise_label"),
		}
		if rec.Score, err = strconv.ParseFloat(get(row, "score"), 64); err != nil {
			return nil, fmt.Errorf("line %d: score: %w", line, err)
		}
		if v := get(row, "duration_seconds"); v != "" {
			if rec.DurationSeconds, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("line %d: duration_seconds: %w", line, err)
			}
		}
		if v := get(row, "assistant_interactions"); v != "" {
			if rec.AssistantInteractions, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("line %d: assistant_interactions: %w", line, err)
			}
		}
		if v := get(row, "occurred_at"); v != "" {
			if rec.OccurredAt, err = parseTime(v); err != nil {
				return nil, fmt.Errorf("line %d: occurred_at: %w", line, err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// Load dispatches on path: directories go through LoadJSONDir, .csv files
// through LoadCSV, anything else through LoadJSON.
func Load(path string) ([]SessionRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadJSONDir(path)
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return LoadCSV(path)
	}
	return LoadJSON(path)
}
