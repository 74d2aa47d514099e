// internal/nlq/intent/zeroshot.go
package intent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"wapi-nlq/internal/models"
	"wapi-nlq/internal/nlq/catalog"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ZeroShotStrategy scores a query against every catalog intent name as a
// candidate label, using embedding similarity, and reports the top label's
// softmax probability as its confidence.
type ZeroShotStrategy struct {
	embedder    Embedder
	temperature float64

	mu     sync.RWMutex
	labels map[string][]float32
}

func NewZeroShotStrategy(embedder Embedder, temperature float64) *ZeroShotStrategy {
	if temperature <= 0 {
		temperature = 0.05
	}
	return &ZeroShotStrategy{
		embedder:    embedder,
		temperature: temperature,
		labels:      make(map[string][]float32),
	}
}

func (z *ZeroShotStrategy) Name() string { return "zero_shot" }

// Probe embeds the catalog's labels. Any failure makes the strategy unavailable.
func (z *ZeroShotStrategy) Probe(ctx context.Context, cat *catalog.Catalog) error {
	if z.embedder == nil {
		return fmt.Errorf("%w: no embedding model configured", ErrUnavailable)
	}
	if err := z.ensureLabels(ctx, cat.Intents()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (z *ZeroShotStrategy) Classify(ctx context.Context, text string, _ models.EntityMap, cat *catalog.Catalog) (models.ClassificationResult, error) {
	names := cat.Intents()
	if len(names) == 0 || strings.TrimSpace(text) == "" {
		return models.ClassificationResult{Intent: models.IntentUnknown}, nil
	}

	// a refreshed catalog may bring intents that were never embedded
	if err := z.ensureLabels(ctx, names); err != nil {
		return models.ClassificationResult{}, err
	}

	vectors, err := z.embedder.Embed(ctx, []string{text})
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return models.ClassificationResult{}, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}
	query := vectors[0]

	z.mu.RLock()
	scores := make([]float64, len(names))
	for i, name := range names {
		scores[i] = cosine(query, z.labels[name])
	}
	z.mu.RUnlock()

	probs := softmax(scores, z.temperature)
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}

	return models.ClassificationResult{
		Intent:     names[best],
		Confidence: probs[best],
	}, nil
}

func (z *ZeroShotStrategy) ensureLabels(ctx context.Context, names []string) error {
	z.mu.RLock()
	var missing []string
	for _, name := range names {
		if _, ok := z.labels[name]; !ok {
			missing = append(missing, name)
		}
	}
	z.mu.RUnlock()
	if len(missing) == 0 {
		return nil
	}

	texts := make([]string, len(missing))
	for i, name := range missing {
		texts[i] = LabelText(name)
	}
	vectors, err := z.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed labels: %w", err)
	}
	if len(vectors) != len(missing) {
		return fmt.Errorf("embed labels: got %d vectors for %d labels", len(vectors), len(missing))
	}

	z.mu.Lock()
	for i, name := range missing {
		z.labels[name] = vectors[i]
	}
	z.mu.Unlock()
	return nil
}

// LabelText renders an intent name as the phrase that gets embedded.
func LabelText(intent string) string {
	return strings.ReplaceAll(intent, "_", " ")
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func softmax(scores []float64, temperature float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp((s - max) / temperature)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
