package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wapi-nlq/internal/common/config"
	nlqhttp "wapi-nlq/internal/common/http"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/models"
	"wapi-nlq/internal/nlq/audit"
	"wapi-nlq/internal/nlq/catalog"
	"wapi-nlq/internal/nlq/escalation"
	"wapi-nlq/internal/nlq/executor"
	"wapi-nlq/internal/nlq/intent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

type countingTransport struct {
	calls atomic.Int32
	next  http.RoundTripper
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.next.RoundTrip(req)
}

type gridRequest struct {
	Method   string
	Path     string
	RawQuery string
	Body     string
}

type fakeGrid struct {
	server    *httptest.Server
	transport *countingTransport

	mu       sync.Mutex
	requests []gridRequest
}

func newFakeGrid(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *fakeGrid {
	g := &fakeGrid{transport: &countingTransport{next: http.DefaultTransport}}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.requests = append(g.requests, gridRequest{r.Method, r.URL.Path, r.URL.RawQuery, string(body)})
		g.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGrid) lastRequest(t *testing.T) gridRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.requests)
	return g.requests[len(g.requests)-1]
}

func (g *fakeGrid) settings() *config.RuntimeSettings {
	return &config.RuntimeSettings{
		Grid: config.GridConfig{
			URL:      g.server.URL + "/wapi/v2.13.1",
			Username: "admin",
			Password: "infoblox",
		},
		Pipeline: config.PipelineConfig{
			ConfidenceThreshold: 0.7,
			EscalationCutoff:    0.8,
			ApplyEscalation:     true,
		},
	}
}

func jsonHandler(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

type fixedStrategy struct {
	result models.ClassificationResult
}

func (f *fixedStrategy) Name() string { return "fixed" }
func (f *fixedStrategy) Probe(context.Context, *catalog.Catalog) error {
	return nil
}
func (f *fixedStrategy) Classify(context.Context, string, models.EntityMap, *catalog.Catalog) (models.ClassificationResult, error) {
	return f.result, nil
}

type fakeBackend struct {
	answer string
	calls  int
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Model() string { return "fake-model" }
func (f *fakeBackend) Complete(context.Context, string, string) (string, error) {
	f.calls++
	return f.answer, nil
}

type memorySink struct {
	mu      sync.Mutex
	records []models.QueryRecord
}

func (m *memorySink) Name() string { return "memory" }
func (m *memorySink) Write(_ context.Context, rec models.QueryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func newPipeline(t *testing.T, grid *fakeGrid, strategy intent.Strategy, deps Deps) *Pipeline {
	log := logger.NewTestLogger(t)
	deps.Classifier = intent.NewClassifier(strategy, log)
	deps.Executor = executor.New(nlqhttp.NewClientWithTransport(5*time.Second, grid.transport), log)

	p, err := New(grid.settings(), catalog.Default(), deps, log)
	require.NoError(t, err)
	return p
}

// ==========================
// End-to-End Scenarios
// ==========================

func TestProcess_ListAllNetworks(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[{"network":"10.0.0.0/24"},{"network":"10.1.0.0/16"}]`))
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{})

	result := p.Process(context.Background(), "List all networks")

	assert.Empty(t, result.Entities)
	assert.Equal(t, "find_network", result.Intent)
	assert.Equal(t, 0.7, result.Confidence)
	assert.Equal(t, "keyword", result.Strategy)
	require.True(t, result.Outcome.IsExecuted(), "outcome: %+v", result.Outcome)

	rows, ok := result.Outcome.Response.([]interface{})
	require.True(t, ok)
	assert.Len(t, rows, 2)

	req := grid.lastRequest(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/wapi/v2.13.1/network", req.Path)
	assert.Empty(t, req.RawQuery)
	assert.Equal(t, int32(1), grid.transport.calls.Load())
}

func TestProcess_CreateNetwork(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusCreated, `"network/ZG5z:10.0.0.0/24/default"`))
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{})

	result := p.Process(context.Background(), "Create a network with CIDR 10.0.0.0/24 and comment TestNetwork")

	assert.Equal(t, models.EntityMap{"network": "10.0.0.0/24", "comment": "TestNetwork"}, result.Entities)
	assert.Equal(t, "create_network", result.Intent)
	assert.Equal(t, 0.7, result.Confidence)
	require.True(t, result.Outcome.IsExecuted(), "outcome: %+v", result.Outcome)

	req := grid.lastRequest(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.JSONEq(t, `{"network": "10.0.0.0/24", "comment": "TestNetwork"}`, req.Body)
}

func TestProcess_VagueQueryIsSkipped(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{})

	result := p.Process(context.Background(), "Do something vague")

	assert.Equal(t, "unknown", result.Intent)
	assert.Equal(t, 0.0, result.Confidence)
	require.True(t, result.Outcome.IsSkipped())
	assert.Equal(t, "confidence too low: 0.00 < 0.70", result.Outcome.Reason)
	assert.Equal(t, int32(0), grid.transport.calls.Load())
}

func TestProcess_BackendErrorIsReported(t *testing.T) {
	grid := newFakeGrid(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	})
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{})

	result := p.Process(context.Background(), "show networks")
	require.True(t, result.Outcome.IsFailed())
	assert.Equal(t, "API error: 404 - not found", result.Outcome.Error)
}

func TestProcess_EmptyQuery(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{})

	result := p.Process(context.Background(), "   ")
	require.True(t, result.Outcome.IsFailed())
	assert.Equal(t, "INVALID_QUERY", result.Outcome.Code)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, int32(0), grid.transport.calls.Load())
}

// ==========================
// Confidence Gate Tests
// ==========================

func TestGate(t *testing.T) {
	tests := []struct {
		confidence float64
		threshold  float64
		pass       bool
		reason     string
	}{
		{0.69, 0.7, false, "confidence too low: 0.69 < 0.70"},
		{0.70, 0.7, true, ""},
		{0.95, 0.7, true, ""},
		{0.0, 0.0, true, ""},
		{0.99, 1.0, false, "confidence too low: 0.99 < 1.00"},
	}

	for _, tt := range tests {
		outcome, pass := Gate(tt.confidence, tt.threshold)
		assert.Equal(t, tt.pass, pass, "confidence %v threshold %v", tt.confidence, tt.threshold)
		if !tt.pass {
			assert.True(t, outcome.IsSkipped())
			assert.Equal(t, tt.reason, outcome.Reason)
		}
	}
}

func TestProcess_GateBoundary(t *testing.T) {
	for _, tc := range []struct {
		confidence float64
		calls      int32
	}{
		{0.69, 0},
		{0.70, 1},
	} {
		grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
		strategy := &fixedStrategy{result: models.ClassificationResult{Intent: "find_network", Confidence: tc.confidence}}
		p := newPipeline(t, grid, strategy, Deps{})

		p.Process(context.Background(), "anything")
		assert.Equal(t, tc.calls, grid.transport.calls.Load(), "confidence %v", tc.confidence)
	}
}

func TestProcess_ThresholdReadPerQuery(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{})

	require.True(t, p.Process(context.Background(), "List all networks").Outcome.IsExecuted())

	stricter := grid.settings()
	stricter.Pipeline.ConfidenceThreshold = 0.9
	p.UpdateSettings(stricter)

	result := p.Process(context.Background(), "List all networks")
	require.True(t, result.Outcome.IsSkipped())
	assert.Equal(t, "confidence too low: 0.70 < 0.90", result.Outcome.Reason)
}

// ==========================
// Catalog Swap Tests
// ==========================

func TestProcess_CatalogSwap(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	p := newPipeline(t, grid, intent.NewKeywordStrategy(true), Deps{})

	result := p.Process(context.Background(), "list hosts")
	assert.Equal(t, "find_host", result.Intent)
	require.True(t, result.Outcome.IsFailed())
	assert.Equal(t, "Unknown intent: find_host", result.Outcome.Error)
	assert.Equal(t, int32(0), grid.transport.calls.Load())

	live, err := catalog.New(catalog.SourceLive, map[string]models.OperationSpec{
		"find_host": {Method: "GET", Endpoint: "record:host", SearchableFields: []string{"name"}},
	})
	require.NoError(t, err)
	p.UpdateCatalog(live)

	result = p.Process(context.Background(), "list hosts")
	require.True(t, result.Outcome.IsExecuted(), "outcome: %+v", result.Outcome)
	assert.Equal(t, "/wapi/v2.13.1/record:host", grid.lastRequest(t).Path)
}

// ==========================
// Escalation Tests
// ==========================

func TestProcess_EscalationApplied(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	backend := &fakeBackend{answer: `{"intent":"find_network","confidence":0.93}`}
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{
		Escalator: escalation.New(backend, nil, logger.NewTestLogger(t)),
	})

	result := p.Process(context.Background(), "what do we have in 10.0.0.0/8")
	assert.Equal(t, 1, backend.calls)
	assert.True(t, result.Escalated)
	assert.Equal(t, "find_network", result.Intent)
	assert.Equal(t, 0.93, result.Confidence)
	require.True(t, result.Outcome.IsExecuted())
	assert.Equal(t, "network=10.0.0.0%2F8", grid.lastRequest(t).RawQuery)
}

func TestProcess_EscalationDiscarded(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	backend := &fakeBackend{answer: `{"intent":"find_network","confidence":0.93}`}
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{
		Escalator: escalation.New(backend, nil, logger.NewTestLogger(t)),
	})
	settings := grid.settings()
	settings.Pipeline.ApplyEscalation = false
	p.UpdateSettings(settings)

	result := p.Process(context.Background(), "what do we have in 10.0.0.0/8")
	assert.Equal(t, 1, backend.calls)
	assert.False(t, result.Escalated)
	assert.Equal(t, "unknown", result.Intent)
	assert.True(t, result.Outcome.IsSkipped())
	assert.Equal(t, int32(0), grid.transport.calls.Load())
}

func TestProcess_EscalationFailureKeepsPrior(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	backend := &fakeBackend{answer: "I cannot help with that"}
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{
		Escalator: escalation.New(backend, nil, logger.NewTestLogger(t)),
	})

	result := p.Process(context.Background(), "List all networks")
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, "find_network", result.Intent)
	assert.Equal(t, 0.7, result.Confidence)
	assert.True(t, result.Outcome.IsExecuted())
}

func TestProcess_HighConfidenceNotEscalated(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	backend := &fakeBackend{answer: `{"intent":"delete_network"}`}
	strategy := &fixedStrategy{result: models.ClassificationResult{Intent: "find_network", Confidence: 0.8}}
	p := newPipeline(t, grid, strategy, Deps{
		Escalator: escalation.New(backend, nil, logger.NewTestLogger(t)),
	})

	result := p.Process(context.Background(), "anything")
	assert.Equal(t, 0, backend.calls)
	assert.Equal(t, "find_network", result.Intent)
}

// ==========================
// Output and Audit Tests
// ==========================

func TestProcess_FlatJSON(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[{"network":"10.0.0.0/24"}]`))
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{})

	data, err := json.Marshal(p.Process(context.Background(), "List all networks"))
	require.NoError(t, err)

	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "List all networks", flat["query"])
	assert.Equal(t, "find_network", flat["intent"])
	assert.Equal(t, 0.7, flat["confidence"])
	assert.Equal(t, map[string]interface{}{}, flat["entities"])
	assert.Contains(t, flat, "wapi_result")
	assert.NotContains(t, flat, "error")
}

func TestProcess_RecordsHistory(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	sink := &memorySink{}
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{
		Recorder: audit.NewRecorder(logger.NewTestLogger(t), sink),
	})

	first := p.Process(context.Background(), "List all networks")
	second := p.Process(context.Background(), "Do something vague")

	require.Len(t, sink.records, 2)
	assert.Equal(t, first.ID, sink.records[0].ID)
	assert.Equal(t, models.OutcomeExecuted, sink.records[0].Status)
	assert.Equal(t, second.ID, sink.records[1].ID)
	assert.Equal(t, models.OutcomeSkipped, sink.records[1].Status)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestProcess_Concurrent(t *testing.T) {
	grid := newFakeGrid(t, jsonHandler(http.StatusOK, `[]`))
	p := newPipeline(t, grid, intent.NewKeywordStrategy(false), Deps{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				p.UpdateSettings(grid.settings())
			}
			result := p.Process(context.Background(), "List all networks")
			assert.True(t, result.Outcome.IsExecuted())
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(20), grid.transport.calls.Load())
}

func TestNew_Validation(t *testing.T) {
	log := logger.NewTestLogger(t)
	settings := &config.RuntimeSettings{}

	_, err := New(nil, catalog.Default(), Deps{}, log)
	assert.Error(t, err)

	_, err = New(settings, nil, Deps{}, log)
	assert.Error(t, err)

	_, err = New(settings, catalog.Default(), Deps{}, log)
	assert.Error(t, err)
}
