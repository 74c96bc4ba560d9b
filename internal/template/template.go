// Package template parses and retrieves stack template documents. A template
// is a JSON or YAML mapping; parsing tries JSON first so JSON documents keep
// their exact typing, then falls back to YAML.
package template

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultMaxBytes caps how large a template document may be, matching the
// remote-fetch limit.
const DefaultMaxBytes = 512 * 1024

// Parse decodes a template document. The top level must be a mapping; any
// scalar, sequence, or undecodable input fails.
func Parse(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty template")
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("template is neither valid JSON nor valid YAML: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("empty template")
	}
	return doc, nil
}
