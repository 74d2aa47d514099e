package observability

import (
	"context"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordQuery_ExportsHistogram(t *testing.T) {
	reg := promclient.NewRegistry()
	obs := NewWithRegisterer("wapi-nlq-test", reg)
	defer obs.Shutdown()

	ctx := context.Background()
	obs.RecordQuery(ctx, 12*time.Millisecond, "executed", "keyword")
	obs.RecordJobProcessed(ctx, "completed")
	obs.RecordJobDuration(ctx, 5*time.Millisecond, "completed")

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	// the exporter keeps dotted names and appends unit and type suffixes
	assert.Contains(t, names, "nlq.query.duration_milliseconds")
	assert.Contains(t, names, "jobs.processed_total")
	assert.Contains(t, names, "jobs.duration_milliseconds")
}

func TestNilObservability_IsSafe(t *testing.T) {
	var obs *Observability
	assert.NotPanics(t, func() {
		obs.RecordQuery(context.Background(), time.Millisecond, "skipped", "keyword")
		obs.RecordJobProcessed(context.Background(), "failed")
		obs.Shutdown()
	})
}
