package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "basestore_operations_total",
	Help: "The total number of core operations by name and outcome kind",
}, []string{"operation", "outcome"})

var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "basestore_operation_duration_seconds",
	Help:    "The duration of core operations",
	Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
}, []string{"operation"})

var EnrichmentLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "basestore_enrichment_lookups_total",
	Help: "The number of reference lookups issued while enriching records",
}, []string{"kind"})

var EnrichmentDepthCutoffs = promauto.NewCounter(prometheus.CounterOpts{
	Name: "basestore_enrichment_depth_cutoffs_total",
	Help: "The number of records returned unresolved because the depth cap was reached",
})

var ListedRecords = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "basestore_listed_records",
	Help:    "The number of records returned per list call",
	Buckets: []float64{0, 1, 10, 25, 50, 100, 250, 500, 1000},
})

// StartServer exposes the default registry on addr. An empty addr disables it.
func StartServer(addr string, wg *sync.WaitGroup) *http.Server {
	if addr == "" {
		slog.Info("Metrics endpoint disabled")
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
