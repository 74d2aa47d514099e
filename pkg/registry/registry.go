// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// LoadRegistry reads and schema-checks an intent registry file.
func LoadRegistry(path string) (*IntentRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

// ParseRegistry validates raw registry JSON before decoding it.
func ParseRegistry(data []byte) (*IntentRegistry, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(documentSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("registry is not valid JSON: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("registry validation failed: %v", errs)
	}

	var reg IntentRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(reg.Intents))
	for _, in := range reg.Intents {
		if _, dup := seen[in.Name]; dup {
			return nil, fmt.Errorf("registry declares intent %q twice", in.Name)
		}
		seen[in.Name] = struct{}{}
	}
	return &reg, nil
}

// SaveRegistry writes reg as indented JSON, stamping LastUpdated.
func SaveRegistry(path string, reg *IntentRegistry) error {
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
