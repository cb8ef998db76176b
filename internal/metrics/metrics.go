package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry         *prometheus.Registry
	commands         *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	eventsAppended   *prometheus.CounterVec
	snapshots        prometheus.Counter
	activeSagas      prometheus.Gauge
	sagaFailures     prometheus.Counter
	deadlinesFired   prometheus.Counter
	trackingPosition *prometheus.GaugeVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_commands_total",
			Help: "Commands dispatched through the command bus by outcome",
		}, []string{"command", "outcome"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_command_duration_seconds",
			Help:    "Time taken to handle a command including its unit of work",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		eventsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_appended_total",
			Help: "Events appended to the event store",
		}, []string{"event"}),
		snapshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_snapshots_total",
			Help: "Aggregate snapshots taken",
		}),
		activeSagas: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_active_sagas",
			Help: "Settlement sagas currently in flight",
		}),
		sagaFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_saga_failures_total",
			Help: "Saga commands rejected by the target aggregate",
		}),
		deadlinesFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_deadlines_fired_total",
			Help: "Deadlines delivered to their aggregate",
		}),
		trackingPosition: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_tracking_position",
			Help: "Last global event position processed by a tracking processor",
		}, []string{"processor"}),
	}
}

func (c *Collector) RecordCommand(command, outcome string, duration time.Duration) {
	c.commands.WithLabelValues(command, outcome).Inc()
	c.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (c *Collector) RecordEventAppended(eventType string) {
	c.eventsAppended.WithLabelValues(eventType).Inc()
}

func (c *Collector) RecordSnapshot() {
	c.snapshots.Inc()
}

func (c *Collector) SetActiveSagas(n int) {
	c.activeSagas.Set(float64(n))
}

func (c *Collector) RecordSagaFailure() {
	c.sagaFailures.Inc()
}

func (c *Collector) RecordDeadlineFired() {
	c.deadlinesFired.Inc()
}

func (c *Collector) SetTrackingPosition(processor string, position int64) {
	c.trackingPosition.WithLabelValues(processor).Set(float64(position))
}

// Registry is exposed for tests reading values back with testutil.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
