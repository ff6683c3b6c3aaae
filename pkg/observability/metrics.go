package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rewind"

// Metrics holds the Prometheus collectors fed by the engine's lifecycle hooks.
type Metrics struct {
	units          *prometheus.CounterVec
	events         *prometheus.CounterVec
	replays        *prometheus.CounterVec
	replayDuration *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		units: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_total",
				Help:      "Undo units closed, by outcome (committed or discarded).",
			},
			[]string{"outcome"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_recorded_total",
				Help:      "Mutations captured into undo units, by kind.",
			},
			[]string{"kind"},
		),
		replays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replays_total",
				Help:      "Unit replays, by direction and status.",
			},
			[]string{"direction", "status"},
		),
		replayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "replay_duration_seconds",
				Help:      "Time spent replaying a unit.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"direction"},
		),
		started: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, c := range []prometheus.Collector{m.units, m.events, m.replays, m.replayDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns the lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnUnitCommitted: func(context.Context, *domain.UnitEvent) {
			m.units.WithLabelValues("committed").Inc()
		},
		OnUnitDiscarded: func(context.Context, *domain.UnitEvent) {
			m.units.WithLabelValues("discarded").Inc()
		},
		OnEventRecorded: func(_ context.Context, e *domain.RecordEvent) {
			m.events.WithLabelValues(string(e.Kind)).Inc()
		},
		OnUndoing: func(_ context.Context, e *domain.UnitEvent) {
			m.mu.Lock()
			m.started[e.UnitID] = m.now()
			m.mu.Unlock()
		},
		OnUndone: func(_ context.Context, e *domain.UnitEvent) {
			status := "ok"
			if e.Err != nil {
				status = "error"
			}
			m.replays.WithLabelValues(string(e.Direction), status).Inc()

			m.mu.Lock()
			start, ok := m.started[e.UnitID]
			delete(m.started, e.UnitID)
			m.mu.Unlock()
			if ok {
				m.replayDuration.WithLabelValues(string(e.Direction)).Observe(m.now().Sub(start).Seconds())
			}
		},
	}
}
