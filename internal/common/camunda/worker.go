// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"wapi-nlq/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler returns an error only when the job could not be resolved at
// all (the complete/fail command itself failed).
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

type JobWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// WorkerOptions are the per-task polling settings.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
}

func NewWorker(client zbc.Client, taskType string, opts WorkerOptions, handler JobHandler, log logger.Logger) *JobWorker {
	log = log.With(map[string]interface{}{"taskType": taskType})

	builder := client.NewJobWorker().
		JobType(taskType).
		Handler(func(jc worker.JobClient, job entities.Job) {
			if err := handler.Handle(jc, job); err != nil {
				log.Error("Handler returned error", map[string]interface{}{
					"jobKey": job.Key,
					"error":  err.Error(),
				})
			}
		})

	step := builder.MaxJobsActive(opts.MaxJobsActive)
	if opts.Timeout > 0 {
		step = step.Timeout(opts.Timeout)
	}

	w := &JobWorker{
		worker:   step.Open(),
		logger:   log,
		taskType: taskType,
	}
	log.Info("Worker started", map[string]interface{}{"maxJobsActive": opts.MaxJobsActive})
	return w
}

func (w *JobWorker) TaskType() string { return w.taskType }

// Close stops polling and waits for in-flight handlers.
func (w *JobWorker) Close() {
	w.logger.Info("Stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
