// Package metrics collects per-run statistics and writes them in the
// Prometheus textfile collector format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pairings/internal/models"
)

// Recorder holds the metrics of one run on its own registry.
type Recorder struct {
	registry    *prometheus.Registry
	fetches     *prometheus.CounterVec
	fetchDur    *prometheus.HistogramVec
	attendees   prometheus.Gauge
	assignments prometheus.Gauge
	unresolved  prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// New creates a Recorder whose metrics carry the event id as a constant label.
func New(eventID string) *Recorder {
	labels := prometheus.Labels{"event": eventID}
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "pairings",
		Name:        "fetch_total",
		Help:        "API requests by resource and outcome",
		ConstLabels: labels,
	}, []string{"resource", "outcome"})
	r.fetchDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "pairings",
		Name:        "fetch_duration_seconds",
		Help:        "Time spent fetching a resource",
		ConstLabels: labels,
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"resource"})
	r.attendees = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "pairings",
		Name:        "attendees",
		Help:        "Attendees after the join",
		ConstLabels: labels,
	})
	r.assignments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "pairings",
		Name:        "assignments",
		Help:        "Assignments after the join",
		ConstLabels: labels,
	})
	r.unresolved = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "pairings",
		Name:        "unresolved_instructors",
		Help:        "Assignments whose instructor is not an attendee",
		ConstLabels: labels,
	})
	r.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "pairings",
		Name:        "last_success_timestamp_seconds",
		Help:        "Unix time of the last successful join",
		ConstLabels: labels,
	})

	r.registry.MustRegister(r.fetches, r.fetchDur, r.attendees, r.assignments, r.unresolved, r.lastSuccess)
	return r
}

// ObserveFetch records one API request.
func (r *Recorder) ObserveFetch(resource string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.fetches.WithLabelValues(resource, outcome).Inc()
	r.fetchDur.WithLabelValues(resource).Observe(elapsed.Seconds())
}

// RecordJoin records the result of a successful join.
func (r *Recorder) RecordJoin(s models.Stats) {
	r.attendees.Set(float64(s.Attendees))
	r.assignments.Set(float64(s.Assignments))
	r.unresolved.Set(float64(s.UnresolvedInstructors))
	r.lastSuccess.SetToCurrentTime()
}

// WriteFile writes all metrics to path atomically.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
