// Package pipeline runs one free-text query through extraction,
// classification, escalation, the confidence gate and execution.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"wapi-nlq/internal/common/config"
	apperrors "wapi-nlq/internal/common/errors"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/common/metrics"
	"wapi-nlq/internal/common/observability"
	"wapi-nlq/internal/models"
	"wapi-nlq/internal/nlq/audit"
	"wapi-nlq/internal/nlq/catalog"
	"wapi-nlq/internal/nlq/entities"
	"wapi-nlq/internal/nlq/escalation"
	"wapi-nlq/internal/nlq/executor"
	"wapi-nlq/internal/nlq/intent"

	"github.com/google/uuid"
)

// Deps are the collaborators chosen at startup. Escalator, Recorder and
// Observability are optional.
type Deps struct {
	Extractor     entities.Extractor
	Classifier    *intent.Classifier
	Escalator     *escalation.Escalator
	Executor      *executor.Executor
	Recorder      *audit.Recorder
	Observability *observability.Observability
}

// Pipeline is safe for concurrent use. Settings and catalog are snapshots
// replaced wholesale; each query reads them once at its start.
type Pipeline struct {
	deps   Deps
	logger logger.Logger
	newID  func() string

	settings atomic.Pointer[config.RuntimeSettings]
	catalog  atomic.Pointer[catalog.Catalog]
}

func New(settings *config.RuntimeSettings, cat *catalog.Catalog, deps Deps, log logger.Logger) (*Pipeline, error) {
	if settings == nil {
		return nil, fmt.Errorf("runtime settings are required")
	}
	if cat == nil {
		return nil, fmt.Errorf("intent catalog is required")
	}
	if deps.Classifier == nil || deps.Executor == nil {
		return nil, fmt.Errorf("classifier and executor are required")
	}
	if deps.Extractor == nil {
		deps.Extractor = entities.NewPatternExtractor()
	}

	p := &Pipeline{
		deps:   deps,
		logger: log.With(map[string]interface{}{"component": "pipeline"}),
		newID:  uuid.NewString,
	}
	p.settings.Store(settings)
	p.catalog.Store(cat)
	return p, nil
}

// UpdateSettings swaps in a new settings snapshot for subsequent queries.
func (p *Pipeline) UpdateSettings(s *config.RuntimeSettings) {
	if s != nil {
		p.settings.Store(s)
	}
}

// UpdateCatalog swaps in a new catalog for subsequent queries.
func (p *Pipeline) UpdateCatalog(c *catalog.Catalog) {
	if c != nil {
		p.catalog.Store(c)
	}
}

func (p *Pipeline) Settings() *config.RuntimeSettings { return p.settings.Load() }

func (p *Pipeline) Catalog() *catalog.Catalog { return p.catalog.Load() }

// Strategy names the classifier strategy selected at startup.
func (p *Pipeline) Strategy() string { return p.deps.Classifier.Strategy() }

// Process never fails. Every error ends up in the result's outcome.
func (p *Pipeline) Process(ctx context.Context, query string) (result models.QueryResult) {
	start := time.Now()
	result = models.QueryResult{
		ID:         p.newID(),
		Query:      query,
		Intent:     models.IntentUnknown,
		Entities:   models.EntityMap{},
		Confidence: 0,
	}
	log := p.logger.With(map[string]interface{}{"queryId": result.ID})

	defer func() {
		if r := recover(); r != nil {
			log.Error("Query processing panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			result.Outcome = models.ExecutionFailed(string(apperrors.ErrCodeInternal), fmt.Sprintf("internal error: %v", r))
		}
		p.finish(ctx, log, result, time.Since(start))
	}()

	settings := p.settings.Load()
	cat := p.catalog.Load()

	if strings.TrimSpace(query) == "" {
		result.Outcome = executor.Failed(apperrors.NewInvalidQueryError("query is empty"))
		return result
	}

	result.Entities = p.deps.Extractor.Extract(query)
	log.Debug("Entities extracted", map[string]interface{}{
		"extractor": p.deps.Extractor.Name(),
		"entities":  result.Entities,
	})

	cls := p.deps.Classifier.Classify(ctx, query, result.Entities, cat)
	log.Info("Query classified", map[string]interface{}{
		"intent":     cls.Intent,
		"confidence": cls.Confidence,
		"strategy":   cls.Strategy,
	})

	cls, result.Escalated = p.deps.Escalator.Review(ctx, query, cls,
		settings.Pipeline.EscalationCutoff, settings.Pipeline.ApplyEscalation, cat)

	result.Intent = cls.Intent
	result.Confidence = cls.Confidence
	result.Strategy = cls.Strategy

	if outcome, pass := Gate(cls.Confidence, settings.Pipeline.ConfidenceThreshold); !pass {
		log.Info("Query skipped", map[string]interface{}{"reason": outcome.Reason})
		result.Outcome = outcome
		return result
	}

	result.Outcome = p.deps.Executor.Run(ctx, settings, cat, cls.Intent, result.Entities)
	return result
}

func (p *Pipeline) finish(ctx context.Context, log logger.Logger, result models.QueryResult, elapsed time.Duration) {
	status := string(result.Outcome.Status)
	metrics.QueriesTotal.WithLabelValues(status).Inc()
	p.deps.Observability.RecordQuery(ctx, elapsed, status, result.Strategy)
	p.deps.Recorder.Record(ctx, result)

	fields := map[string]interface{}{
		"status":     status,
		"intent":     result.Intent,
		"durationMs": elapsed.Milliseconds(),
	}
	if result.Outcome.IsFailed() {
		fields["errorCode"] = result.Outcome.Code
		fields["error"] = result.Outcome.Error
		log.Warn("Query failed", fields)
		return
	}
	log.Info("Query processed", fields)
}

// Gate passes when confidence reaches threshold. The boundary passes.
func Gate(confidence, threshold float64) (models.ExecutionOutcome, bool) {
	if confidence < threshold {
		return models.Skipped(fmt.Sprintf("confidence too low: %.2f < %.2f", confidence, threshold)), false
	}
	return models.ExecutionOutcome{}, true
}
