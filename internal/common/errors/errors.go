// Package errors provides standardized error handling for the query pipeline
// and its BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeConfigurationMissing      ErrorCode = "CONFIGURATION_MISSING"
	ErrCodeClassificationUnavailable ErrorCode = "CLASSIFICATION_UNAVAILABLE"
	ErrCodeEscalationFailed          ErrorCode = "ESCALATION_FAILED"

	ErrCodeUnknownIntent         ErrorCode = "UNKNOWN_INTENT"
	ErrCodeMethodNotImplemented  ErrorCode = "METHOD_NOT_IMPLEMENTED"
	ErrCodeMissingRequiredFields ErrorCode = "MISSING_REQUIRED_FIELDS"
	ErrCodeInvalidQuery          ErrorCode = "INVALID_QUERY"

	ErrCodeBackendHTTPError   ErrorCode = "BACKEND_HTTP_ERROR"
	ErrCodeBackendUnreachable ErrorCode = "BACKEND_UNREACHABLE"
	ErrCodeBackendOtherError  ErrorCode = "BACKEND_OTHER_ERROR"

	ErrCodeCatalogLoadFailed ErrorCode = "CATALOG_LOAD_FAILED"
	ErrCodeAuditWriteFailed  ErrorCode = "AUDIT_WRITE_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewConfigurationMissingError is fatal at startup, never raised per query.
func NewConfigurationMissingError(details string) *StandardError {
	return newError(ErrCodeConfigurationMissing, "Required configuration is missing", details, false, nil)
}

func NewClassificationUnavailableError(strategy string, err error) *StandardError {
	return newError(ErrCodeClassificationUnavailable,
		fmt.Sprintf("Classification strategy %s is unavailable", strategy), errString(err), false, err)
}

func NewEscalationFailedError(err error) *StandardError {
	return newError(ErrCodeEscalationFailed, "Escalation failed", errString(err), true, err)
}

func NewUnknownIntentError(intent string) *StandardError {
	return newError(ErrCodeUnknownIntent, fmt.Sprintf("Unknown intent: %s", intent), "", false, nil)
}

func NewMethodNotImplementedError(method string) *StandardError {
	return newError(ErrCodeMethodNotImplemented, fmt.Sprintf("Method %s not implemented", method), "", false, nil)
}

func NewMissingRequiredFieldsError(fields []string) *StandardError {
	return newError(ErrCodeMissingRequiredFields,
		fmt.Sprintf("Missing required fields: %s", strings.Join(fields, ", ")), "", false, nil)
}

func NewInvalidQueryError(details string) *StandardError {
	return newError(ErrCodeInvalidQuery, "Invalid query", details, false, nil)
}

// NewBackendHTTPError carries the grid's status and body verbatim in the message.
func NewBackendHTTPError(status int, body string) *StandardError {
	e := newError(ErrCodeBackendHTTPError, fmt.Sprintf("API error: %d - %s", status, body), "", status >= 500, nil)
	e.Metadata = map[string]interface{}{"status": status}
	return e
}

func NewBackendUnreachableError(host string, err error) *StandardError {
	e := newError(ErrCodeBackendUnreachable, "Could not connect to backend", errString(err), true, err)
	e.Metadata = map[string]interface{}{
		"hint": fmt.Sprintf("check grid.host (%s) and that the grid API is reachable", host),
	}
	return e
}

func NewBackendOtherError(err error) *StandardError {
	return newError(ErrCodeBackendOtherError, errString(err), "", false, err)
}

func NewCatalogLoadFailedError(source string, err error) *StandardError {
	return newError(ErrCodeCatalogLoadFailed,
		fmt.Sprintf("Failed to load intent catalog from %s", source), errString(err), true, err)
}

func NewAuditWriteFailedError(sink string, err error) *StandardError {
	return newError(ErrCodeAuditWriteFailed,
		fmt.Sprintf("Failed to write query history to %s", sink), errString(err), true, err)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the codes BPMN boundary events catch.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeConfigurationMissing:      "CONFIGURATION_MISSING",
	ErrCodeClassificationUnavailable: "CLASSIFICATION_UNAVAILABLE",
	ErrCodeEscalationFailed:          "ESCALATION_FAILED",
	ErrCodeUnknownIntent:             "UNKNOWN_INTENT",
	ErrCodeMethodNotImplemented:      "METHOD_NOT_IMPLEMENTED",
	ErrCodeMissingRequiredFields:     "MISSING_REQUIRED_FIELDS",
	ErrCodeInvalidQuery:              "INVALID_QUERY",
	ErrCodeBackendHTTPError:          "BACKEND_HTTP_ERROR",
	ErrCodeBackendUnreachable:        "BACKEND_UNREACHABLE",
	ErrCodeBackendOtherError:         "BACKEND_ERROR",
	ErrCodeCatalogLoadFailed:         "CATALOG_LOAD_FAILED",
	ErrCodeAuditWriteFailed:          "AUDIT_WRITE_FAILED",
}

// GetRetryCount returns the recommended job retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeBackendUnreachable,
		ErrCodeCatalogLoadFailed,
		ErrCodeAuditWriteFailed:
		return 3

	case ErrCodeEscalationFailed:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard finds a StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns err's code, or INTERNAL_ERROR for foreign errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Hint returns the operator guidance attached to an error, if any.
func (e *StandardError) Hint() string {
	if e.Metadata == nil {
		return ""
	}
	hint, _ := e.Metadata["hint"].(string)
	return hint
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "CLASSIFICATION") || strings.Contains(codeStr, "ESCALATION") || strings.Contains(codeStr, "INTENT"):
		return "CLASSIFICATION"
	case strings.Contains(codeStr, "BACKEND") || strings.Contains(codeStr, "METHOD"):
		return "BACKEND"
	case strings.Contains(codeStr, "CATALOG"):
		return "CATALOG"
	case strings.Contains(codeStr, "AUDIT"):
		return "AUDIT"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "MISSING"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
