// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/logger"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/sentry"
)

// Phase labels.
const (
	PhaseProvision = "provision"
	PhaseSpawn     = "spawn"
	PhaseReadiness = "readiness"
	PhaseShutdown  = "shutdown"
	PhaseCleanup   = "cleanup"
)

var (
	namespace = "harness"
	subsystem = "lifecycle"

	lifecycleState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state",
			Help:      "1 for the state the lifecycle orchestrator is currently in, 0 otherwise",
		},
		[]string{"state"},
	)

	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each lifecycle phase in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 15, 30, 60, 120, 240},
		},
		[]string{"phase", "outcome"},
	)

	setupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "setup_failures_total",
			Help:      "Total number of failed setups by error kind",
		},
		[]string{"kind"},
	)

	forcedKills = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "forced_kills_total",
			Help:      "Total number of service processes that had to be killed",
		},
	)

	cleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cleanup_failures_total",
			Help:      "Total number of cleanups that left something behind",
		},
	)

	healthProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "health_probes_total",
			Help:      "Total number of readiness probes by result",
		},
		[]string{"result"},
	)

	filesystemOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filesystem",
			Name:      "ops_total",
			Help:      "Total number of filesystem operations by type and status",
		},
		[]string{"operation", "status"},
	)

	filesystemOpsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "filesystem",
			Name:      "ops_duration_seconds",
			Help:      "Duration of filesystem operations in seconds",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		},
		[]string{"operation"},
	)
)

// SetLifecycleState marks current as the only active state.
func SetLifecycleState(current string, all []string) {
	for _, state := range all {
		value := 0.0
		if state == current {
			value = 1
		}

		lifecycleState.WithLabelValues(state).Set(value)
	}
}

// ObservePhase records how long a phase took and whether it succeeded.
func ObservePhase(phase string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	phaseDuration.WithLabelValues(phase, outcome).Observe(duration.Seconds())
}

// IncSetupFailure counts a fatal setup error.
func IncSetupFailure(kind string) {
	setupFailures.WithLabelValues(kind).Inc()
}

// IncForcedKill counts a process that ignored the graceful shutdown.
func IncForcedKill() {
	forcedKills.Inc()
}

// IncCleanupFailure counts a cleanup that reported a best-effort error.
func IncCleanupFailure() {
	cleanupFailures.Inc()
}

// RecordHealthProbe counts a single readiness probe.
func RecordHealthProbe(healthy bool) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}

	healthProbes.WithLabelValues(result).Inc()
}

// RecordFilesystemOp records a filesystem operation metric.
func RecordFilesystemOp(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}

	filesystemOpsTotal.WithLabelValues(operation, status).Inc()
	filesystemOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetupMetricsEndpoint starts an HTTP server to expose metrics.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeError, logger.For(logger.ComponentMetrics))
		}
	}()

	return server
}
