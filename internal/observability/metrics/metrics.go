package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inferloop/modelops/pkg/models"
)

// Metrics is the Prometheus instrumentation for the lifecycle core. All
// observe methods are nil-safe so components can run without metrics in
// tests.
type Metrics struct {
	registry *prometheus.Registry

	versionsCreated prometheus.Counter
	promotions      prometheus.Counter
	archives        prometheus.Counter

	deployments *prometheus.CounterVec
	rollbacks   prometheus.Counter

	trafficRequests prometheus.Counter
	trafficErrors   prometheus.Counter
	endpointHealth  *prometheus.GaugeVec
	endpointLatency *prometheus.GaugeVec

	driftEvents     *prometheus.CounterVec
	retrainTriggers prometheus.Counter
	activeMonitors  prometheus.Gauge
}

// New creates the metric set under the given namespace and registers it on
// a fresh registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		versionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_created_total",
			Help:      "Model versions created.",
		}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Version stage promotions.",
		}),
		archives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Version archivals, manual and retention-driven.",
		}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Deployments started, by strategy.",
		}, []string{"strategy"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Deployments rolled back.",
		}),
		trafficRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traffic_requests_total",
			Help:      "Requests recorded across endpoints.",
		}),
		trafficErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traffic_errors_total",
			Help:      "Errors recorded across endpoints.",
		}),
		endpointHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_health",
			Help:      "Endpoint health: 0 healthy, 1 degraded, 2 unhealthy.",
		}, []string{"endpoint_id"}),
		endpointLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_latency_ms",
			Help:      "Smoothed endpoint latency estimate in milliseconds.",
		}, []string{"endpoint_id"}),
		driftEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_events_total",
			Help:      "Drift events detected, by severity.",
		}, []string{"severity"}),
		retrainTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrain_triggers_total",
			Help:      "Retrain decisions that fired.",
		}),
		activeMonitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_monitors",
			Help:      "Drift monitors currently registered.",
		}),
	}

	m.registry.MustRegister(
		m.versionsCreated, m.promotions, m.archives,
		m.deployments, m.rollbacks,
		m.trafficRequests, m.trafficErrors, m.endpointHealth, m.endpointLatency,
		m.driftEvents, m.retrainTriggers, m.activeMonitors,
	)
	return m
}

// Handler exposes the registry for a /metrics listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) ObserveVersionCreated() {
	if m != nil {
		m.versionsCreated.Inc()
	}
}

func (m *Metrics) ObservePromotion() {
	if m != nil {
		m.promotions.Inc()
	}
}

func (m *Metrics) ObserveArchive() {
	if m != nil {
		m.archives.Inc()
	}
}

func (m *Metrics) ObserveDeployment(strategy models.Strategy) {
	if m != nil {
		m.deployments.WithLabelValues(string(strategy)).Inc()
	}
}

func (m *Metrics) ObserveRollback() {
	if m != nil {
		m.rollbacks.Inc()
	}
}

func (m *Metrics) ObserveTraffic(requests, errors int64) {
	if m != nil {
		m.trafficRequests.Add(float64(requests))
		m.trafficErrors.Add(float64(errors))
	}
}

func (m *Metrics) SetEndpointHealth(endpointID string, health models.Health) {
	if m == nil {
		return
	}
	var v float64
	switch health {
	case models.HealthDegraded:
		v = 1
	case models.HealthUnhealthy:
		v = 2
	}
	m.endpointHealth.WithLabelValues(endpointID).Set(v)
}

func (m *Metrics) SetEndpointLatency(endpointID string, latencyMS float64) {
	if m != nil {
		m.endpointLatency.WithLabelValues(endpointID).Set(latencyMS)
	}
}

func (m *Metrics) ObserveDriftEvent(severity models.Severity) {
	if m != nil {
		m.driftEvents.WithLabelValues(string(severity)).Inc()
	}
}

func (m *Metrics) ObserveRetrainTrigger() {
	if m != nil {
		m.retrainTriggers.Inc()
	}
}

func (m *Metrics) SetActiveMonitors(n int) {
	if m != nil {
		m.activeMonitors.Set(float64(n))
	}
}
