package config

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ApplyJSONPatch merges a flat map of dotted-path → value overrides (e.g.
// {"gates.requireTest": false, "executor.concurrencyLimit": 2}) into cfg's
// JSON representation and returns the patched Config, without hand-rolling a
// reflection-based merge. Neither the HTTP API nor the CLI calls it; gate
// policy updates go through gates.GatePolicyPatch instead.
func ApplyJSONPatch(cfg Config, patch map[string]any) (Config, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: marshaling base config: %w", err)
	}

	doc := string(raw)
	for path, value := range patch {
		doc, err = sjson.Set(doc, path, value)
		if err != nil {
			return cfg, fmt.Errorf("config: applying patch at %q: %w", path, err)
		}
	}

	var patched Config
	if err := json.Unmarshal([]byte(doc), &patched); err != nil {
		return cfg, fmt.Errorf("config: unmarshaling patched config: %w", err)
	}
	return patched, nil
}

// Get reads a single dotted-path value out of cfg's JSON representation.
func Get(cfg Config, path string) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("config: marshaling config: %w", err)
	}
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return "", fmt.Errorf("config: path %q not found", path)
	}
	return result.String(), nil
}
