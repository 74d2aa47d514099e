// Package escalation asks a generative language model to re-classify
// queries the classifier was unsure about.
package escalation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "wapi-nlq/internal/common/errors"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/common/metrics"
	"wapi-nlq/internal/common/validation"
	"wapi-nlq/internal/models"
	"wapi-nlq/internal/nlq/catalog"
)

var (
	ErrEscalationFailed = errors.New("ESCALATION_FAILED")
	ErrMalformedAnswer  = errors.New("MALFORMED_ANSWER")
)

// DefaultConfidence is assumed when the model's answer omits a confidence.
const DefaultConfidence = 0.9

const systemPrompt = "You are an Infoblox WAPI assistant."

// Backend sends one prompt to a language model and returns its text answer.
type Backend interface {
	Name() string
	Model() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Cache stores raw model answers keyed by model and query.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

var answerSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"intent"},
	"properties": map[string]interface{}{
		"intent":     map[string]interface{}{"type": "string", "minLength": 1},
		"confidence": map[string]interface{}{"type": "number"},
	},
})

type answer struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
}

// Escalator wraps a Backend with prompting, answer validation and caching.
type Escalator struct {
	backend Backend
	cache   Cache
	logger  logger.Logger
}

func New(backend Backend, cache Cache, log logger.Logger) *Escalator {
	return &Escalator{
		backend: backend,
		cache:   cache,
		logger: log.With(map[string]interface{}{
			"component": "escalation",
			"provider":  backend.Name(),
		}),
	}
}

func (e *Escalator) Provider() string { return e.backend.Name() }

// Review is the pipeline step. Below cutoff it consults the backend; any
// failure is logged and the prior result is kept. With apply unset the
// escalated answer is logged and discarded. The bool reports whether the
// returned result came from the backend.
func (e *Escalator) Review(ctx context.Context, text string, prior models.ClassificationResult, cutoff float64, apply bool, cat *catalog.Catalog) (models.ClassificationResult, bool) {
	if e == nil || prior.Confidence >= cutoff {
		return prior, false
	}

	e.logger.Info("Low confidence, escalating", map[string]interface{}{
		"intent":     prior.Intent,
		"confidence": prior.Confidence,
		"cutoff":     cutoff,
	})

	result, err := e.Escalate(ctx, text, cat)
	if err != nil {
		stdErr := apperrors.NewEscalationFailedError(err)
		e.logger.Error("Escalation failed", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"error":     err.Error(),
		})
		metrics.EscalationsTotal.WithLabelValues("failed").Inc()
		return prior, false
	}

	if !apply {
		e.logger.Info("Escalation result discarded", map[string]interface{}{
			"escalatedIntent":     result.Intent,
			"escalatedConfidence": result.Confidence,
		})
		metrics.EscalationsTotal.WithLabelValues("discarded").Inc()
		return prior, false
	}

	e.logger.Info("Escalation result applied", map[string]interface{}{
		"intent":     result.Intent,
		"confidence": result.Confidence,
	})
	metrics.EscalationsTotal.WithLabelValues("applied").Inc()
	return result, true
}

// Escalate asks the backend for a classification. The answer must name a
// catalog intent or "unknown".
func (e *Escalator) Escalate(ctx context.Context, text string, cat *catalog.Catalog) (models.ClassificationResult, error) {
	raw, err := e.complete(ctx, text, cat)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("%w: %v", ErrEscalationFailed, err)
	}

	result, err := ParseAnswer(raw, cat)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("%w: %v", ErrEscalationFailed, err)
	}
	result.Strategy = "escalation:" + e.backend.Name()
	return result, nil
}

func (e *Escalator) complete(ctx context.Context, text string, cat *catalog.Catalog) (string, error) {
	key := CacheKey(e.backend.Model(), text)
	if e.cache != nil {
		if val, ok, err := e.cache.Get(ctx, key); err != nil {
			e.logger.Warn("Escalation cache read failed", map[string]interface{}{"error": err.Error()})
		} else if ok {
			// a cached answer is re-validated against the current catalog
			if _, perr := ParseAnswer(val, cat); perr == nil {
				return val, nil
			}
		}
	}

	raw, err := e.backend.Complete(ctx, systemPrompt, BuildPrompt(text, cat.Intents()))
	if err != nil {
		return "", err
	}

	if e.cache != nil {
		if _, perr := ParseAnswer(raw, cat); perr == nil {
			if err := e.cache.Set(ctx, key, raw); err != nil {
				e.logger.Warn("Escalation cache write failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
	return raw, nil
}

// BuildPrompt lists the allowed intents and asks for a JSON answer.
func BuildPrompt(text string, intents []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Classify this query: %q\n", text)
	b.WriteString("Allowed intents: ")
	b.WriteString(strings.Join(append(append([]string{}, intents...), models.IntentUnknown), ", "))
	b.WriteString("\nReturn only JSON with fields \"intent\" (one of the allowed intents) and \"confidence\" (0 to 1).")
	return b.String()
}

// ParseAnswer validates a model answer. Code fences around the JSON are
// tolerated.
func ParseAnswer(raw string, cat *catalog.Catalog) (models.ClassificationResult, error) {
	body := stripFences(raw)

	if vr := answerSchema.ValidateJSON([]byte(body)); !vr.Valid {
		return models.ClassificationResult{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, vr.Err())
	}

	var a answer
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return models.ClassificationResult{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}

	intent := strings.TrimSpace(a.Intent)
	if intent != models.IntentUnknown && !cat.Has(intent) {
		return models.ClassificationResult{}, fmt.Errorf("%w: intent %q is not in the catalog", ErrMalformedAnswer, intent)
	}

	confidence := DefaultConfidence
	if a.Confidence != nil {
		confidence = *a.Confidence
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return models.ClassificationResult{Intent: intent, Confidence: confidence}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop a language tag such as ```json
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// CacheKey derives the cache key for a model and query.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "nlq:escalation:" + hex.EncodeToString(sum[:])
}
