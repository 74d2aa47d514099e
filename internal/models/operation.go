// internal/models/operation.go
package models

import (
	"fmt"
	"strings"
)

// OperationSpec describes how one intent is executed against the grid.
type OperationSpec struct {
	Method           string   `json:"method"`
	Endpoint         string   `json:"endpoint"`
	Fields           []string `json:"fields,omitempty"`
	RequiredFields   []string `json:"required_fields,omitempty"`
	SearchableFields []string `json:"searchable_fields,omitempty"`
}

// Validate checks that every required field is also a writable field.
func (s OperationSpec) Validate() error {
	if s.Method == "" {
		return fmt.Errorf("method is required")
	}
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if len(s.RequiredFields) == 0 || len(s.Fields) == 0 {
		return nil
	}

	known := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		known[f] = struct{}{}
	}

	var missing []string
	for _, f := range s.RequiredFields {
		if _, ok := known[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required fields not in fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsRead reports whether the operation is a GET-style lookup.
func (s OperationSpec) IsRead() bool {
	return strings.EqualFold(s.Method, "GET")
}
