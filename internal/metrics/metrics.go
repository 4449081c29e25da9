package metrics

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry           = prometheus.NewRegistry()
	defaultRegisterer  = promauto.With(registry)
	metricsInitialized sync.Once
	metricsEnabled     bool
	metricsServer      *http.Server
)

// Metrics contains all the Prometheus metrics for the application
type Metrics struct {
	// Classification service metrics
	LookupDuration *prometheus.HistogramVec
	LookupsTotal   *prometheus.CounterVec
	BatchLookups   prometheus.Histogram

	// Cache metrics
	CacheRequests  *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec
	CacheEntries   prometheus.Gauge

	// Durable store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec

	// Matcher metrics
	MatchesTotal      *prometheus.CounterVec
	MatchesSuppressed *prometheus.CounterVec

	// Scheduler metrics
	QueueBackpressureHit *prometheus.CounterVec
	WorkerBusy           *prometheus.GaugeVec
	WorkerPanics         *prometheus.CounterVec

	// Scan driver metrics
	DocumentsUnchanged prometheus.Counter
	FilesScanned       *prometheus.CounterVec
}

// Global instance of metrics
var globalMetrics *Metrics
var metricsOnce sync.Once

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics()
	})
	return globalMetrics
}

// EnableMetrics enables metrics collection
func EnableMetrics() {
	metricsEnabled = true
}

// IsMetricsEnabled returns whether metrics collection is enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// newMetrics creates and registers all metrics
func newMetrics() *Metrics {
	buckets := []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

	return &Metrics{
		LookupDuration: defaultRegisterer.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "greenlink_lookup_duration_seconds",
				Help:    "Time spent on a single green hosting lookup",
				Buckets: buckets,
			},
			[]string{"status"},
		),
		LookupsTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenlink_lookups_total",
				Help: "Total number of green hosting lookups by outcome",
			},
			[]string{"status"},
		),
		BatchLookups: defaultRegisterer.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "greenlink_batch_lookups",
				Help:    "Number of domains that needed a lookup per classify batch",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
			},
		),

		CacheRequests: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenlink_cache_requests_total",
				Help: "Cache reads by result (hit, miss, expired)",
			},
			[]string{"result"},
		),
		CacheEvictions: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenlink_cache_evictions_total",
				Help: "Cache entries removed by reason",
			},
			[]string{"reason"},
		),
		CacheEntries: defaultRegisterer.NewGauge(
			prometheus.GaugeOpts{
				Name: "greenlink_cache_entries",
				Help: "Current number of cached classifications",
			},
		),

		StoreOperations: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenlink_store_operations_total",
				Help: "Durable store operations by backend, operation and status",
			},
			[]string{"backend", "op", "status"},
		),
		StoreDuration: defaultRegisterer.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "greenlink_store_duration_seconds",
				Help:    "Time spent in durable store operations",
				Buckets: buckets,
			},
			[]string{"backend", "op"},
		),

		MatchesTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenlink_matches_total",
				Help: "Accepted URL and domain matches by extraction pass",
			},
			[]string{"kind"},
		),
		MatchesSuppressed: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenlink_matches_suppressed_total",
				Help: "Domain-looking candidates dropped by a heuristic rule",
			},
			[]string{"rule"},
		),

		QueueBackpressureHit: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenlink_queue_backpressure_hits_total",
				Help: "Number of times a lookup submission found its worker queue full",
			},
			[]string{"worker_id"},
		),
		WorkerBusy: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "greenlink_worker_busy",
				Help: "Whether a lookup worker is currently busy (1) or idle (0)",
			},
			[]string{"worker_id"},
		),
		WorkerPanics: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenlink_worker_panics_total",
				Help: "Total number of panics recovered by a lookup worker",
			},
			[]string{"worker_id"},
		),

		DocumentsUnchanged: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "greenlink_documents_unchanged_total",
				Help: "Document submissions skipped because their content fingerprint did not change",
			},
		),
		FilesScanned: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greenlink_files_scanned_total",
				Help: "Workspace files visited by outcome (scanned, skipped, failed)",
			},
			[]string{"status"},
		),
	}
}

// Handler returns the HTTP handler serving the metrics registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartMetricsServer starts an HTTP server to expose Prometheus metrics
func StartMetricsServer(addr string) error {
	if !metricsEnabled || addr == "" {
		return nil
	}

	// Only start once
	metricsInitialized.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler())

		metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Printf("Starting metrics server on %s", addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	})

	return nil
}

// ShutdownMetricsServer gracefully shuts down the metrics server
func ShutdownMetricsServer(ctx context.Context) error {
	if metricsServer != nil {
		log.Println("Shutting down metrics server...")
		return metricsServer.Shutdown(ctx)
	}
	return nil
}

// SetWorkerBusy flips the busy gauge for a lookup worker.
func (m *Metrics) SetWorkerBusy(workerID int, busy bool) {
	if !metricsEnabled {
		return
	}
	v := 0.0
	if busy {
		v = 1
	}
	m.WorkerBusy.WithLabelValues(strconv.Itoa(workerID)).Set(v)
}

// RecordBackpressure counts a full-queue submission for a worker.
func (m *Metrics) RecordBackpressure(workerID int) {
	if !metricsEnabled {
		return
	}
	m.QueueBackpressureHit.WithLabelValues(strconv.Itoa(workerID)).Inc()
}

// RecordStoreOp records the outcome and duration of a durable store operation.
func (m *Metrics) RecordStoreOp(backend, op string, started time.Time, err error) {
	if !metricsEnabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(backend, op, status).Inc()
	m.StoreDuration.WithLabelValues(backend, op).Observe(time.Since(started).Seconds())
}
