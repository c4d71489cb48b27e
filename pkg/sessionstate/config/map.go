package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Map wraps a map[string]any for type-safe value extraction.
// All accessor methods return defaultVal if the key is missing
// or the value cannot be converted to the requested type.
type Map struct {
	data map[string]any
}

// New creates a Map from the given map.
// If data is nil, an empty Map is returned.
func New(data map[string]any) Map {
	if data == nil {
		data = make(map[string]any)
	}
	return Map{data: data}
}

// String returns the string value for key.
func (m Map) String(key, defaultVal string) string {
	if s, ok := m.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean value for key.
func (m Map) Bool(key string, defaultVal bool) bool {
	if b, ok := m.data[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key.
//
// Accepts int, int64, and float64 without a fractional part.
func (m Map) Int(key string, defaultVal int) int {
	switch val := m.data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Float returns the float64 value for key.
func (m Map) Float(key string, defaultVal float64) float64 {
	switch val := m.data[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	}
	return defaultVal
}

// Duration returns the duration value for key.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int, int64, float64: interpreted as seconds
//   - time.Duration: used directly
func (m Map) Duration(key string, defaultVal time.Duration) time.Duration {
	switch val := m.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Time returns the time value for key. Strings are parsed as RFC 3339;
// YAML timestamps arrive as time.Time and are used directly.
func (m Map) Time(key string, defaultVal time.Time) time.Time {
	switch val := m.data[key].(type) {
	case time.Time:
		return val
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t
		}
	}
	return defaultVal
}

// StringSlice returns the string slice for key. A []any with any
// non-string element yields defaultVal.
func (m Map) StringSlice(key string, defaultVal []string) []string {
	switch val := m.data[key].(type) {
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			result = append(result, s)
		}
		return result
	}
	return defaultVal
}

// StringMap returns a map of strings for key, such as an artifact index.
// A map with any non-string value yields defaultVal.
func (m Map) StringMap(key string, defaultVal map[string]string) map[string]string {
	switch val := m.data[key].(type) {
	case map[string]string:
		return val
	case map[string]any:
		result := make(map[string]string, len(val))
		for k, item := range val {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			result[k] = s
		}
		return result
	}
	return defaultVal
}

// Sub returns the nested map under key, or an empty Map.
func (m Map) Sub(key string) Map {
	if sub, ok := m.data[key].(map[string]any); ok {
		return New(sub)
	}
	return New(nil)
}

// Any returns the raw value for key, or defaultVal if missing.
func (m Map) Any(key string, defaultVal any) any {
	v, ok := m.data[key]
	if !ok {
		return defaultVal
	}
	return v
}

// Has returns true if the key exists.
func (m Map) Has(key string) bool {
	_, ok := m.data[key]
	return ok
}

// Len returns the number of top-level keys.
func (m Map) Len() int {
	return len(m.data)
}

// Raw returns the underlying map.
// The returned map should not be modified.
func (m Map) Raw() map[string]any {
	return m.data
}

// JSON encodes the map, for use as checkpoint data.
func (m Map) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(m.data)
	if err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	return b, nil
}
