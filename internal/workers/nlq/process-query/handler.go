package processquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "wapi-nlq/internal/common/errors"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/common/metrics"
	"wapi-nlq/internal/common/observability"
	"wapi-nlq/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "process-network-query"
)

// Processor runs one query. *pipeline.Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, query string) models.QueryResult
}

type Handler struct {
	config     *Config
	pipeline   Processor
	errHandler *apperrors.ErrorHandler
	obs        *observability.Observability
	logger     logger.Logger
}

func NewHandler(config *Config, pipeline Processor, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:     config,
		pipeline:   pipeline,
		errHandler: apperrors.NewErrorHandler(log),
		obs:        obs,
		logger:     log,
	}
}

// Handle completes the job with the flat query result. Only malformed job
// variables fail the job; pipeline failures are part of the result.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := ParseInput(job.Variables)
	if err != nil {
		h.recordJob(ctx, "failed", time.Since(start))
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
		h.errHandler.HandleJobError(ctx, client, job, err)
		return nil
	}

	result := h.Execute(ctx, input)

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(result)
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("send complete job command: %w", err)
	}

	h.recordJob(ctx, "completed", time.Since(start))
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":  job.Key,
		"queryId": result.ID,
		"status":  string(result.Outcome.Status),
	})
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) models.QueryResult {
	return h.pipeline.Process(ctx, input.Query)
}

func (h *Handler) recordJob(ctx context.Context, status string, elapsed time.Duration) {
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(elapsed.Seconds())
	h.obs.RecordJobProcessed(ctx, status)
	h.obs.RecordJobDuration(ctx, elapsed, status)
}

// ParseInput validates job variables against the input schema.
func ParseInput(variables string) (*Input, error) {
	vr := inputSchema.ValidateJSON([]byte(variables))
	if !vr.Valid {
		return nil, apperrors.NewInvalidQueryError(strings.Join(vr.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidQueryError(err.Error())
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, apperrors.NewInvalidQueryError("query is blank")
	}
	return &input, nil
}
