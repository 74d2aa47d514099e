// internal/models/result.go
package models

import (
	"encoding/json"
)

type OutcomeStatus string

const (
	OutcomeSkipped  OutcomeStatus = "skipped"
	OutcomeExecuted OutcomeStatus = "executed"
	OutcomeFailed   OutcomeStatus = "failed"
)

// ExecutionOutcome is one of Skipped{reason}, Executed{response} or
// ExecutionFailed{error}. Build it with the constructors below.
type ExecutionOutcome struct {
	Status   OutcomeStatus `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Response interface{}   `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
	Code     string        `json:"code,omitempty"`
	Hint     string        `json:"hint,omitempty"`
}

func Skipped(reason string) ExecutionOutcome {
	return ExecutionOutcome{Status: OutcomeSkipped, Reason: reason}
}

func Executed(response interface{}) ExecutionOutcome {
	return ExecutionOutcome{Status: OutcomeExecuted, Response: response}
}

func ExecutionFailed(code, message string) ExecutionOutcome {
	return ExecutionOutcome{Status: OutcomeFailed, Code: code, Error: message}
}

// WithHint attaches operator guidance to a failed outcome.
func (o ExecutionOutcome) WithHint(hint string) ExecutionOutcome {
	o.Hint = hint
	return o
}

func (o ExecutionOutcome) IsSkipped() bool  { return o.Status == OutcomeSkipped }
func (o ExecutionOutcome) IsExecuted() bool { return o.Status == OutcomeExecuted }
func (o ExecutionOutcome) IsFailed() bool   { return o.Status == OutcomeFailed }

// QueryResult is the only externally visible artifact of the pipeline.
type QueryResult struct {
	ID         string
	Query      string
	Intent     string
	Confidence float64
	Strategy   string
	Escalated  bool
	Entities   EntityMap
	Outcome    ExecutionOutcome
}

// MarshalJSON renders the flat record callers consume: executed results carry
// wapi_result, failures carry error, skipped results carry message.
func (r QueryResult) MarshalJSON() ([]byte, error) {
	entities := r.Entities
	if entities == nil {
		entities = EntityMap{}
	}

	flat := map[string]interface{}{
		"id":         r.ID,
		"query":      r.Query,
		"intent":     r.Intent,
		"confidence": r.Confidence,
		"entities":   entities,
		"status":     r.Outcome.Status,
	}
	if r.Strategy != "" {
		flat["strategy"] = r.Strategy
	}
	if r.Escalated {
		flat["escalated"] = true
	}

	switch r.Outcome.Status {
	case OutcomeExecuted:
		flat["wapi_result"] = r.Outcome.Response
	case OutcomeFailed:
		flat["error"] = r.Outcome.Error
		if r.Outcome.Code != "" {
			flat["code"] = r.Outcome.Code
		}
		if r.Outcome.Hint != "" {
			flat["hint"] = r.Outcome.Hint
		}
	case OutcomeSkipped:
		flat["message"] = r.Outcome.Reason
	}

	return json.Marshal(flat)
}

// Record converts the result into its persisted form.
func (r QueryResult) Record() QueryRecord {
	detail, _ := json.Marshal(r.Outcome)
	return QueryRecord{
		ID:         r.ID,
		Query:      r.Query,
		Intent:     r.Intent,
		Confidence: r.Confidence,
		Strategy:   r.Strategy,
		Escalated:  r.Escalated,
		Entities:   r.Entities,
		Status:     r.Outcome.Status,
		Detail:     detail,
	}
}
