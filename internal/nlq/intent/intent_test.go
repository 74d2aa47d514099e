package intent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/models"
	"wapi-nlq/internal/nlq/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

// fakeEmbedder maps texts onto a tiny bag-of-words space:
// [create, find, update, delete, network, host].
type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
	seen  []string
}

var fakeAxes = [][]string{
	{"create", "add", "new"},
	{"find", "list", "show"},
	{"update", "change", "modify"},
	{"delete", "remove", "drop"},
	{"network", "networks"},
	{"host", "hosts"},
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, texts...)
	if f.err != nil {
		return nil, f.err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(fakeAxes))
		for _, word := range strings.Fields(strings.ToLower(text)) {
			for axis, words := range fakeAxes {
				for _, w := range words {
					if word == w {
						vec[axis]++
					}
				}
			}
		}
		out[i] = vec
	}
	return out, nil
}

type stubStrategy struct {
	name     string
	probeErr error
	result   models.ClassificationResult
	err      error
	probes   int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Probe(context.Context, *catalog.Catalog) error {
	s.probes++
	return s.probeErr
}

func (s *stubStrategy) Classify(context.Context, string, models.EntityMap, *catalog.Catalog) (models.ClassificationResult, error) {
	return s.result, s.err
}

// ==========================
// Keyword Strategy Tests
// ==========================

func TestKeywordStrategy_Classify(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		derive     bool
		intent     string
		confidence float64
	}{
		{"create", "Create a network with CIDR 10.0.0.0/24", false, "create_network", 0.7},
		{"find via list", "List all networks", false, "find_network", 0.7},
		{"update via modify", "modify the comment on 10.0.0.0/24", false, "update_network", 0.7},
		{"delete via remove", "REMOVE network 10.0.0.0/24", false, "delete_network", 0.7},
		{"no keyword", "xyz nonsense", false, "unknown", 0.0},
		{"vague", "Do something vague", false, "unknown", 0.0},
		{"bucket order wins", "delete the old one and add a new one", false, "create_network", 0.7},
		{"address is not add", "what about address 10.0.0.1", false, "unknown", 0.0},
		{"inflection", "Adding subnet 10.9.0.0/16", false, "create_network", 0.7},
		{"gerund of create", "Creating a network 10.0.0.0/24", false, "create_network", 0.7},
		{"gerund of make", "Making subnet 10.2.0.0/16", false, "create_network", 0.7},
		{"gerund of update", "Updating the comment on 10.0.0.0/24", false, "update_network", 0.7},
		{"gerund of change", "Changing the comment", false, "update_network", 0.7},
		{"gerund of delete", "Deleting network 10.0.0.0/24", false, "delete_network", 0.7},
		{"gerund of remove", "Removing network 10.0.0.0/24", false, "delete_network", 0.7},
		{"doubled consonant", "Dropping network 10.0.0.0/24", false, "delete_network", 0.7},
		{"past tense with y", "modified networks", false, "update_network", 0.7},
		{"noun fixed without derivation", "create host web.example.com", false, "create_network", 0.7},
		{"noun derived", "create host web.example.com", true, "create_host", 0.7},
		{"first noun wins", "show zones for this network", true, "find_zone", 0.7},
		{"no noun falls back", "delete 10.0.0.0/24", true, "delete_network", 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewKeywordStrategy(tt.derive)
			result, err := k.Classify(context.Background(), tt.text, nil, catalog.Default())
			require.NoError(t, err)
			assert.Equal(t, tt.intent, result.Intent)
			assert.Equal(t, tt.confidence, result.Confidence)
		})
	}
}

func TestInflections(t *testing.T) {
	assert.Contains(t, inflections("create"), "creating")
	assert.Contains(t, inflections("drop"), "dropping")
	assert.Contains(t, inflections("set"), "setting")
	assert.Contains(t, inflections("modify"), "modifies")
	assert.NotContains(t, inflections("add"), "address")
	assert.NotContains(t, inflections("show"), "showwing")
}

func TestKeywordStrategy_IntentSuffix(t *testing.T) {
	result, err := NewKeywordStrategy(false).Classify(context.Background(), "Create a network with CIDR 10.0.0.0/24", nil, catalog.Default())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.Intent, "_network"))
	assert.Equal(t, 0.7, result.Confidence)
}

// ==========================
// Zero-shot Strategy Tests
// ==========================

func TestZeroShotStrategy_Classify(t *testing.T) {
	embedder := &fakeEmbedder{}
	z := NewZeroShotStrategy(embedder, 0.05)
	cat := catalog.Default()

	require.NoError(t, z.Probe(context.Background(), cat))
	assert.Contains(t, embedder.seen, "create network")
	assert.Contains(t, embedder.seen, "find network")

	tests := []struct {
		text   string
		intent string
	}{
		{"add a new network 10.0.0.0/24", "create_network"},
		{"show me every network", "find_network"},
		{"drop network 10.1.0.0/16", "delete_network"},
		{"change network comment", "update_network"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			result, err := z.Classify(context.Background(), tt.text, nil, cat)
			require.NoError(t, err)
			assert.Equal(t, tt.intent, result.Intent)
			assert.Greater(t, result.Confidence, 0.9)
			assert.LessOrEqual(t, result.Confidence, 1.0)
		})
	}
}

func TestZeroShotStrategy_LabelsEmbeddedOnce(t *testing.T) {
	embedder := &fakeEmbedder{}
	z := NewZeroShotStrategy(embedder, 0.05)
	cat := catalog.Default()

	require.NoError(t, z.Probe(context.Background(), cat))
	_, err := z.Classify(context.Background(), "list networks", nil, cat)
	require.NoError(t, err)
	_, err = z.Classify(context.Background(), "add network", nil, cat)
	require.NoError(t, err)

	// one probe batch plus one call per query
	assert.Equal(t, 3, embedder.calls)
}

func TestZeroShotStrategy_NewCatalogIntents(t *testing.T) {
	embedder := &fakeEmbedder{}
	z := NewZeroShotStrategy(embedder, 0.05)
	require.NoError(t, z.Probe(context.Background(), catalog.Default()))

	hosts, err := catalog.New("live", map[string]models.OperationSpec{
		"create_host":    {Method: "POST", Endpoint: "record:host"},
		"create_network": {Method: "POST", Endpoint: "network"},
	})
	require.NoError(t, err)

	result, err := z.Classify(context.Background(), "add host", nil, hosts)
	require.NoError(t, err)
	assert.Equal(t, "create_host", result.Intent)
	assert.Contains(t, embedder.seen, "create host")
}

func TestZeroShotStrategy_ProbeFailures(t *testing.T) {
	z := NewZeroShotStrategy(nil, 0)
	err := z.Probe(context.Background(), catalog.Default())
	assert.ErrorIs(t, err, ErrUnavailable)

	z = NewZeroShotStrategy(&fakeEmbedder{err: errors.New("quota exceeded")}, 0)
	err = z.Probe(context.Background(), catalog.Default())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestSoftmaxAndCosine(t *testing.T) {
	probs := softmax([]float64{1, 1}, 0.05)
	assert.InDelta(t, 0.5, probs[0], 1e-9)

	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{0, 0}))
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
}

// ==========================
// Registry Tests
// ==========================

func TestRegistry_SelectsFirstAvailable(t *testing.T) {
	unavailable := &stubStrategy{name: "zero_shot", probeErr: ErrUnavailable}
	keyword := NewKeywordStrategy(false)

	classifier, err := NewRegistry(logger.NewTestLogger(t), unavailable, keyword).Select(context.Background(), catalog.Default())
	require.NoError(t, err)
	assert.Equal(t, "keyword", classifier.Strategy())
	assert.Equal(t, 1, unavailable.probes)

	result := classifier.Classify(context.Background(), "List all networks", nil, catalog.Default())
	assert.Equal(t, "find_network", result.Intent)
	assert.Equal(t, "keyword", result.Strategy)

	// selection is not repeated per query
	classifier.Classify(context.Background(), "List all networks", nil, catalog.Default())
	assert.Equal(t, 1, unavailable.probes)
}

func TestRegistry_PrefersMoreCapable(t *testing.T) {
	zs := NewZeroShotStrategy(&fakeEmbedder{}, 0.05)
	classifier, err := NewRegistry(logger.NewTestLogger(t), zs, NewKeywordStrategy(false)).Select(context.Background(), catalog.Default())
	require.NoError(t, err)
	assert.Equal(t, "zero_shot", classifier.Strategy())
}

func TestRegistry_NothingAvailable(t *testing.T) {
	_, err := NewRegistry(logger.NewTestLogger(t), &stubStrategy{name: "a", probeErr: ErrUnavailable}, nil).Select(context.Background(), catalog.Default())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClassifier_RuntimeErrorYieldsUnknown(t *testing.T) {
	failing := &stubStrategy{name: "zero_shot", err: errors.New("deadline exceeded")}
	classifier := NewClassifier(failing, logger.NewTestLogger(t))

	result := classifier.Classify(context.Background(), "create network", nil, catalog.Default())
	assert.Equal(t, models.IntentUnknown, result.Intent)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, "zero_shot", result.Strategy)
}

func TestClassifier_ClampsConfidence(t *testing.T) {
	over := &stubStrategy{name: "x", result: models.ClassificationResult{Intent: "find_network", Confidence: 1.3}}
	result := NewClassifier(over, logger.NewTestLogger(t)).Classify(context.Background(), "q", nil, catalog.Default())
	assert.Equal(t, 1.0, result.Confidence)
}
