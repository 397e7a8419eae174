package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	EventsCreated       prometheus.Counter
	EventsDeleted       prometheus.Counter
	Registrations       prometheus.Counter
	RegistrationsFull   prometheus.Counter
	RegistrationsDelete prometheus.Counter
	Restores            *prometheus.CounterVec
	Resets              prometheus.Counter
	SnapshotSaves       *prometheus.CounterVec
	SnapshotBytes       prometheus.Gauge
}

// New creates the metrics and registers them with reg. Passing a fresh
// prometheus.NewRegistry() lets several instances coexist in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_events_created_total",
			Help: "Total number of events created",
		}),
		EventsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_events_deleted_total",
			Help: "Total number of events deleted together with their registrations",
		}),
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_registrations_total",
			Help: "Total number of successful registrations",
		}),
		RegistrationsFull: f.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_registrations_rejected_full_total",
			Help: "Registrations refused because the event was at capacity",
		}),
		RegistrationsDelete: f.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_registrations_deleted_total",
			Help: "Total number of registrations deleted individually",
		}),
		Restores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_restores_total",
			Help: "Restore attempts by result",
		}, []string{"result"}),
		Resets: f.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_resets_total",
			Help: "Total number of full database resets",
		}),
		SnapshotSaves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_snapshot_saves_total",
			Help: "Snapshot saves to durable storage by result",
		}, []string{"result"}),
		SnapshotBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "eventreg_snapshot_bytes",
			Help: "Size of the last successfully saved database image",
		}),
	}
}

// ObserveSave records the outcome of a snapshot save.
func (m *Metrics) ObserveSave(size int, err error) {
	if err != nil {
		m.SnapshotSaves.WithLabelValues("error").Inc()
		return
	}
	m.SnapshotSaves.WithLabelValues("ok").Inc()
	m.SnapshotBytes.Set(float64(size))
}
