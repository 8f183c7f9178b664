package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry           *prometheus.Registry
	jobsTotal          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	activeJobs         prometheus.Gauge
	framesEmittedTotal prometheus.Counter
	outputBytesTotal   prometheus.Counter
	computeTimeMSTotal prometheus.Counter
	reduceTruncated    prometheus.Counter
	reduceDegraded     prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrforge_worker_jobs_total",
			Help: "Total worker jobs by media kind and final status.",
		}, []string{"kind", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qrforge_worker_job_duration_seconds",
			Help:    "Total processing duration for each worker job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qrforge_worker_active_jobs",
			Help: "Current number of active generation jobs in the worker.",
		}),
		framesEmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrforge_usage_frames_emitted_total",
			Help: "Total output frames emitted across all successful jobs.",
		}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrforge_usage_output_bytes_total",
			Help: "Total output bytes produced across all successful jobs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrforge_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful jobs.",
		}),
		reduceTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrforge_media_frames_truncated_total",
			Help: "Total animated inputs truncated at the frame cap.",
		}),
		reduceDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrforge_media_reduce_degraded_total",
			Help: "Total animated inputs passed through unreduced after a reduction failure.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.framesEmittedTotal,
		m.outputBytesTotal,
		m.computeTimeMSTotal,
		m.reduceTruncated,
		m.reduceDegraded,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
