package observability

import (
	"strings"
	"testing"

	tagpool "github.com/kodecache/tagpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// mockObservable implements tagpool.Observable for testing.
type mockObservable struct {
	stats tagpool.Stats
}

func (m *mockObservable) Stats() tagpool.Stats {
	return m.stats
}

func TestPrometheusCollector(t *testing.T) {
	mock := &mockObservable{
		stats: tagpool.Stats{
			Hits:        10,
			Misses:      5,
			Saves:       20,
			Deletes:     2,
			Invalidates: 1,
			Errors:      0,
		},
	}

	collector := NewPrometheusCollector(mock, "myapp", "cache", "default")

	reg := prometheus.NewPedanticRegistry()
	err := reg.Register(collector)
	assert.NoError(t, err)

	metrics, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, metrics)

	expected := `
		# HELP myapp_cache_hits_total Total number of item fetches served from the backend
		# TYPE myapp_cache_hits_total counter
		myapp_cache_hits_total{pool="default"} 10
	`
	err = testutil.CollectAndCompare(collector, strings.NewReader(expected), "myapp_cache_hits_total")
	assert.NoError(t, err)
}
