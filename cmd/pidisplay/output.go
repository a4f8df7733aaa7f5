package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// writeValue prints a property value in the given format.
func writeValue(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := fmt.Fprintln(w, plain(v))
	return err
}

// writeValues prints every property. Plain output is one name=value per
// line, sorted by name.
func writeValues(w io.Writer, format string, values map[string]any) error {
	if format != "plain" && format != "" {
		return writeValue(w, format, values)
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if _, err := fmt.Fprintf(w, "%s=%s\n", name, plainQuoted(values[name])); err != nil {
			return err
		}
	}
	return nil
}

func plain(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%g", x)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// plainQuoted quotes strings so multi-line text stays on one line.
func plainQuoted(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return plain(v)
}
