// Package intent maps query text to a catalog intent with a confidence score.
//
// Several strategies exist. Which one serves queries is decided once, when
// the Registry probes them at startup; it is never re-evaluated per query.
package intent

import (
	"context"
	"errors"
	"fmt"

	apperrors "wapi-nlq/internal/common/errors"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/common/metrics"
	"wapi-nlq/internal/models"
	"wapi-nlq/internal/nlq/catalog"
)

// ErrUnavailable is returned by Probe when a strategy's backing model or
// service cannot be used in this process.
var ErrUnavailable = errors.New("CLASSIFICATION_UNAVAILABLE")

// Strategy is one way of classifying a query.
type Strategy interface {
	Name() string
	// Probe reports whether the strategy can serve queries. Called once.
	Probe(ctx context.Context, cat *catalog.Catalog) error
	// Classify scores text against the catalog's intents.
	Classify(ctx context.Context, text string, entities models.EntityMap, cat *catalog.Catalog) (models.ClassificationResult, error)
}

// Classifier is the strategy the Registry settled on.
type Classifier struct {
	strategy Strategy
	logger   logger.Logger
}

// Registry holds candidate strategies in precedence order, most capable first.
type Registry struct {
	strategies []Strategy
	logger     logger.Logger
}

func NewRegistry(log logger.Logger, strategies ...Strategy) *Registry {
	return &Registry{
		strategies: strategies,
		logger:     log.With(map[string]interface{}{"component": "intent.registry"}),
	}
}

// Select probes each strategy in order and returns a Classifier bound to the
// first available one. With no available strategy it returns an error.
func (r *Registry) Select(ctx context.Context, cat *catalog.Catalog) (*Classifier, error) {
	for _, s := range r.strategies {
		if s == nil {
			continue
		}
		if err := s.Probe(ctx, cat); err != nil {
			stdErr := apperrors.NewClassificationUnavailableError(s.Name(), err)
			r.logger.Warn("Classification strategy unavailable", map[string]interface{}{
				"strategy":  s.Name(),
				"errorCode": string(stdErr.Code),
				"details":   stdErr.Details,
			})
			continue
		}

		r.logger.Info("Classification strategy selected", map[string]interface{}{
			"strategy": s.Name(),
		})
		return &Classifier{strategy: s, logger: r.logger}, nil
	}
	return nil, fmt.Errorf("%w: no classification strategy is available", ErrUnavailable)
}

// NewClassifier binds a strategy directly, skipping the probe.
func NewClassifier(s Strategy, log logger.Logger) *Classifier {
	return &Classifier{strategy: s, logger: log}
}

func (c *Classifier) Strategy() string { return c.strategy.Name() }

// Classify never fails. A runtime error from the strategy yields unknown with
// zero confidence, which leaves recovery to the escalation step.
func (c *Classifier) Classify(ctx context.Context, text string, entities models.EntityMap, cat *catalog.Catalog) models.ClassificationResult {
	result, err := c.strategy.Classify(ctx, text, entities, cat)
	if err != nil {
		c.logger.Error("Classification failed", map[string]interface{}{
			"strategy": c.strategy.Name(),
			"error":    err.Error(),
		})
		result = models.ClassificationResult{Intent: models.IntentUnknown, Confidence: 0}
	}
	result.Confidence = clamp01(result.Confidence)
	result.Strategy = c.strategy.Name()

	metrics.ClassificationsTotal.WithLabelValues(result.Strategy).Inc()
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
