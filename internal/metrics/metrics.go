// Package metrics records run outcomes as Prometheus series and, when
// configured, CloudWatch metric data.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"settleflow/logger"
	"settleflow/models"
)

// Recorder owns a private registry so several recorders can coexist.
type Recorder struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	sources     *prometheus.CounterVec
	attempts    *prometheus.HistogramVec
	settlements *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
	cw          *CloudWatch
	log         *logger.Entry
}

// NewRecorder registers the settleflow series. cw may be nil.
func NewRecorder(cw *CloudWatch) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settleflow_runs_total",
			Help: "Completed runs by status code",
		}, []string{"status"}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settleflow_source_results_total",
			Help: "Source outcomes by key and status code",
		}, []string{"source", "status"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settleflow_fetch_attempts",
			Help:    "Requests needed to resolve a source, lookback included",
			Buckets: []float64{1, 2, 3, 5, 10, 30},
		}, []string{"source"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settleflow_settlements_total",
			Help: "Contract months written per source",
		}, []string{"source"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "settleflow_run_duration_seconds",
			Help:    "Wall time of a run",
			Buckets: prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "settleflow_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished with 200",
		}),
		cw:  cw,
		log: logger.GetLogger().WithComponent("metrics"),
	}

	r.registry.MustRegister(
		r.runs, r.sources, r.attempts, r.settlements, r.duration, r.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records res. CloudWatch failures are logged, never returned.
func (r *Recorder) ObserveRun(ctx context.Context, res models.RunResult, elapsed time.Duration) {
	if r == nil {
		return
	}

	status := strconv.Itoa(res.StatusCode)
	r.runs.WithLabelValues(status).Inc()
	r.duration.Observe(elapsed.Seconds())
	if res.StatusCode == http.StatusOK {
		r.lastSuccess.SetToCurrentTime()
	}

	data := []cwtypes.MetricDatum{
		datum("RunCompleted", 1, cwtypes.StandardUnitCount, map[string]string{"status": status}),
		datum("RunDuration", elapsed.Seconds(), cwtypes.StandardUnitSeconds, nil),
	}

	for _, src := range res.Sources {
		code := strconv.Itoa(src.StatusCode)
		r.sources.WithLabelValues(src.Key, code).Inc()
		if src.Attempts > 0 {
			r.attempts.WithLabelValues(src.Key).Observe(float64(src.Attempts))
		}
		months := 0
		for _, line := range src.Data.LineInfo {
			months += len(line.Months)
		}
		r.settlements.WithLabelValues(src.Key).Add(float64(months))

		data = append(data,
			datum("SourceResult", 1, cwtypes.StandardUnitCount, map[string]string{"source": src.Key, "status": code}),
			datum("SettlementMonths", float64(months), cwtypes.StandardUnitCount, map[string]string{"source": src.Key}),
		)
	}

	if err := r.cw.Publish(ctx, data); err != nil {
		r.log.WithError(err).Warn("failed to publish CloudWatch metrics")
	}
}
