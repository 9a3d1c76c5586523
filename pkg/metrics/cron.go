package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// CronJobMetrics records sweeper jobs and cycles. A nil receiver or one built
// from a nil registerer drops everything.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	success     *prometheus.CounterVec
	failure     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	cycles      *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "cron", Name: name, Help: help}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Sweeper job run time.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15, 30, 60},
		}, []string{"job"}),
		success:     prometheus.NewCounterVec(prometheus.CounterOpts(opts("job_success_total", "Sweeper job runs that returned nil.")), []string{"job"}),
		failure:     prometheus.NewCounterVec(prometheus.CounterOpts(opts("job_failure_total", "Sweeper job runs that returned an error.")), []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts(opts("job_last_success_timestamp_seconds", "Unix time of the last successful run.")), []string{"job"}),
		cycles:      prometheus.NewCounterVec(prometheus.CounterOpts(opts("cycle_total", "Sweep cycles by outcome.")), []string{"outcome"}),
	}
	reg.MustRegister(m.duration, m.success, m.failure, m.lastSuccess, m.cycles)
	return m
}

// ObserveJob records one run of job finishing at now.
func (m *CronJobMetrics) ObserveJob(job string, took time.Duration, err error, now time.Time) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.failure.WithLabelValues(job).Inc()
		return
	}
	m.success.WithLabelValues(job).Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(now.Unix()))
}

// Cycle counts a sweep cycle as skipped, completed or aborted.
func (m *CronJobMetrics) Cycle(outcome string) {
	if m == nil {
		return
	}
	inc(m.cycles, outcome)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
