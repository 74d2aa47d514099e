package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Logger is the one method the handler needs; logger.Logger satisfies it.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler resolves a Zeebe job whose variables could not be turned
// into a query: transient codes fail the job for a retry, everything else
// is thrown as a BPMN error the process can catch.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr, ok := AsStandard(err)
	if !ok {
		stdErr = &StandardError{
			Code:      ErrCodeInternal,
			Message:   "Unexpected error",
			Details:   errString(err),
			Timestamp: time.Now().UTC(),
			cause:     err,
		}
	}
	bpmnErr := ConvertToBPMNError(stdErr)
	vars, hasVars := errorVariablesJSON(bpmnErr)

	fields := map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"details":          stdErr.Details,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	}

	if retries := remainingRetries(stdErr, job); retries > 0 {
		fields["retries"] = retries
		h.logger.Error("Job failed, retrying", fields)

		cmd := client.NewFailJobCommand().JobKey(job.Key).Retries(int32(retries)).ErrorMessage(bpmnErr.Message)
		if hasVars {
			if withVars, err := cmd.VariablesFromString(vars); err == nil {
				_, _ = withVars.Send(ctx)
				return
			}
		}
		_, _ = cmd.Send(ctx)
		return
	}

	h.logger.Error("Job failed, throwing BPMN error", fields)
	cmd := client.NewThrowErrorCommand().JobKey(job.Key).ErrorCode(bpmnErr.Code).ErrorMessage(bpmnErr.Message)
	if hasVars {
		if withVars, err := cmd.VariablesFromString(vars); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
	}
	_, _ = cmd.Send(ctx)
}

// remainingRetries is the retry count to hand back to the engine, never
// more than the code allows nor more than the job has left. Zero means
// throw instead of fail.
func remainingRetries(stdErr *StandardError, job entities.Job) int {
	if !stdErr.Retryable || !IsRetryableErrorCode(stdErr.Code) {
		return 0
	}
	retries := GetRetryCount(stdErr.Code)
	if left := int(job.Retries) - 1; left < retries {
		retries = left
	}
	if retries < 0 {
		return 0
	}
	return retries
}

func errorVariablesJSON(bpmnErr *BPMNError) (string, bool) {
	vars := bpmnErr.ToErrorVariables()
	if len(vars) == 0 {
		return "", false
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return "", false
	}
	return string(data), true
}
