// Package audit appends processed queries to history stores.
package audit

import (
	"context"
	"time"

	apperrors "wapi-nlq/internal/common/errors"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/models"
)

// Sink persists one query record.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec models.QueryRecord) error
}

// Recorder fans a record out to every sink. Sink failures are logged, never returned.
type Recorder struct {
	sinks  []Sink
	logger logger.Logger
	now    func() time.Time
}

func NewRecorder(log logger.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:  sinks,
		logger: log.With(map[string]interface{}{"component": "audit"}),
		now:    time.Now,
	}
}

func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sinks)
}

// Record writes result to all sinks and reports how many succeeded.
func (r *Recorder) Record(ctx context.Context, result models.QueryResult) int {
	if r == nil || len(r.sinks) == 0 {
		return 0
	}

	rec := result.Record()
	rec.CreatedAt = r.now().UTC()

	written := 0
	for _, sink := range r.sinks {
		if err := sink.Write(ctx, rec); err != nil {
			stdErr := apperrors.NewAuditWriteFailedError(sink.Name(), err)
			r.logger.Warn("Audit write failed", map[string]interface{}{
				"sink":      sink.Name(),
				"queryId":   rec.ID,
				"errorCode": string(stdErr.Code),
				"error":     err.Error(),
			})
			continue
		}
		written++
	}
	return written
}
