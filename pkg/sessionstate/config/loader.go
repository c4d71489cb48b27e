package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads a map from a file, detecting the format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Map{}, fmt.Errorf("read %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Map{}, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// FromYAML parses a YAML mapping.
func FromYAML(data []byte) (Map, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Map{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses a JSON object.
func FromJSON(data []byte) (Map, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Map{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// FromRaw decodes a checkpoint payload. Empty input yields an empty Map.
func FromRaw(raw json.RawMessage) (Map, error) {
	if len(raw) == 0 {
		return New(nil), nil
	}
	return FromJSON(raw)
}

// ParseKeyValues parses "key=value" pairs. "true" and "false" become booleans
// and numbers become float64, matching values decoded from JSON, but only when
// the float64 prints back as the same text. "007", "1e3" and IDs too long for
// a float64 stay strings, as does everything else. A later pair overrides an earlier one with the same key.
func ParseKeyValues(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[key] = inferValue(value)
	}
	return out, nil
}

func inferValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if strconv.FormatFloat(f, 'f', -1, 64) == s {
		return f
	}
	return s
}
