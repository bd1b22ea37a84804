// Package telemetry exposes Prometheus metrics for the parse pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	parsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csvintake_parses_total",
		Help: "Multipart parse requests by outcome.",
	}, []string{"status"})

	parsedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csvintake_parsed_rows_total",
		Help: "Total CSV data rows returned to clients.",
	})

	parseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "csvintake_parse_duration_seconds",
		Help:    "Wall time of multipart parse requests.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveParse records one finished parse request.
func ObserveParse(start time.Time, rows int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	parsesTotal.WithLabelValues(status).Inc()
	if err == nil {
		parsedRowsTotal.Add(float64(rows))
	}
	parseDuration.Observe(time.Since(start).Seconds())
}
