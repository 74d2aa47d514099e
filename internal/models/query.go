// internal/models/query.go
package models

import (
	"encoding/json"
	"time"
)

// Entity kinds recognized in query text. Keys double as grid field names.
const (
	EntityIP      = "ip"
	EntityNetwork = "network"
	EntityFQDN    = "fqdn"
	EntityMAC     = "mac"
	EntityComment = "comment"
	EntityTTL     = "ttl"
	EntityExtAttr = "extattr"
)

// IntentUnknown is reported when no strategy could place the query.
const IntentUnknown = "unknown"

// EntityMap holds at most one extracted value per entity kind.
type EntityMap map[string]string

// Has reports whether kind was extracted.
func (m EntityMap) Has(kind string) bool {
	_, ok := m[kind]
	return ok
}

// ClassificationResult is the (intent, confidence) pair produced by a classifier
// strategy or the escalation step.
type ClassificationResult struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy,omitempty"`
}

// QueryRecord is the persisted form of a processed query.
type QueryRecord struct {
	ID         string          `json:"id"`
	Query      string          `json:"query"`
	Intent     string          `json:"intent"`
	Confidence float64         `json:"confidence"`
	Strategy   string          `json:"strategy"`
	Escalated  bool            `json:"escalated"`
	Entities   EntityMap       `json:"entities"`
	Status     OutcomeStatus   `json:"status"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
