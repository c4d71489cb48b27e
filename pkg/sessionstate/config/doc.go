/*
Package config provides typed access to the free-form maps a workflow keeps
in session metadata and checkpoint payloads, and loads such maps from files.

# Overview

Session.Metadata and checkpoint data are map[string]any once decoded. Map
wraps them with accessors that return a default when a key is missing or
holds the wrong type, so callers avoid chains of type assertions:

	meta := config.New(session.Metadata)
	owner := meta.String("owner", "unknown")
	retries := meta.Int("max_retries", 3)
	deadline := meta.Time("deadline", time.Time{})

Values decoded from JSON arrive as float64 and []any; the numeric and slice
accessors accept those alongside native Go types.

# Loading

FromFile reads YAML or JSON by extension. FromRaw decodes a checkpoint
payload. ParseKeyValues turns "key=value" pairs (as given on a command line)
into a map, inferring booleans and numbers.

	data, err := config.FromFile("state.yaml")
	if err != nil {
	    return err
	}
	raw, err := data.JSON() // ready to save as checkpoint data

# Thread Safety

Map is safe for concurrent reads. It does not copy the map it wraps.
*/
package config
