package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Format names accepted by Write.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteYAML writes v as YAML using the same field names as its JSON form.
// Values are round-tripped through JSON so json tags and omitempty rules
// apply.
func WriteYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("decoding: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// Write encodes v as JSON or YAML. It returns false for FormatTable or an
// empty format so the caller can render its own table view.
func Write(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case FormatJSON:
		return true, WriteJSON(w, v)
	case FormatYAML:
		return true, WriteYAML(w, v)
	case "", FormatTable:
		return false, nil
	default:
		return false, fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}
