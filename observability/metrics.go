package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoterun",
			Name:      "runs_total",
			Help:      "Total run_code invocations by outcome.",
		},
		[]string{"engine", "outcome"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remoterun",
			Name:      "run_duration_seconds",
			Help:      "run_code duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"engine", "outcome"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoterun",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(runsTotal, runDuration, httpRequests)
	})
}

// RecordRun counts one finished run_code call; outcome is "success" or an error kind
func RecordRun(engine, outcome string, duration time.Duration) {
	RegisterMetrics()
	runsTotal.WithLabelValues(engine, outcome).Inc()
	runDuration.WithLabelValues(engine, outcome).Observe(duration.Seconds())
}

func RecordHTTPRequest(method, path string, status int) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
