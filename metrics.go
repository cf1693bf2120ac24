// metrics.go: Metrics collection interfaces and Prometheus implementation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector receives counters from the lifecycle manager and the
// event bus. Implementations must be safe for concurrent use; calls happen
// on publisher goroutines and on the async worker pool.
type MetricsCollector interface {
	// PluginStateChanged fires on every lifecycle state transition.
	PluginStateChanged(id string, state PluginState)

	// EventPublished fires once per Publish/PublishSync call.
	EventPublished(topic string)

	// EventDelivered fires once per completed handler invocation.
	EventDelivered(topic string, async bool)

	// RequestHandled fires once per Request, ok reporting whether a value
	// was produced.
	RequestHandled(topic string, ok bool)

	// SubscriptionsActive reports the live subscription count after every
	// subscribe/unsubscribe.
	SubscriptionsActive(count int)
}

// PrometheusCollector is a MetricsCollector backed by Prometheus collectors.
//
// Topic labels carry raw topic strings; hosts with unbounded topic spaces
// should front this with their own aggregation.
type PrometheusCollector struct {
	stateTransitions    *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
	eventsDelivered     *prometheus.CounterVec
	requestsHandled     *prometheus.CounterVec
	subscriptionsActive prometheus.Gauge
}

// NewPrometheusCollector builds a collector and registers its metrics with
// the given registerer (prometheus.DefaultRegisterer when nil).
func NewPrometheusCollector(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "pluginhost"
	}

	c := &PrometheusCollector{
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_state_transitions_total",
			Help:      "Plugin lifecycle state transitions by plugin and resulting state.",
		}, []string{"plugin", "state"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published to the bus by topic.",
		}, []string{"topic"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Completed handler deliveries by topic and delivery mode.",
		}, []string{"topic", "mode"}),
		requestsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_handled_total",
			Help:      "Request/response calls by topic and outcome.",
		}, []string{"topic", "outcome"}),
		subscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Live event subscriptions.",
		}),
	}

	reg.MustRegister(
		c.stateTransitions,
		c.eventsPublished,
		c.eventsDelivered,
		c.requestsHandled,
		c.subscriptionsActive,
	)
	return c
}

func (c *PrometheusCollector) PluginStateChanged(id string, state PluginState) {
	c.stateTransitions.WithLabelValues(id, state.String()).Inc()
}

func (c *PrometheusCollector) EventPublished(topic string) {
	c.eventsPublished.WithLabelValues(topic).Inc()
}

func (c *PrometheusCollector) EventDelivered(topic string, async bool) {
	mode := "sync"
	if async {
		mode = "async"
	}
	c.eventsDelivered.WithLabelValues(topic, mode).Inc()
}

func (c *PrometheusCollector) RequestHandled(topic string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	c.requestsHandled.WithLabelValues(topic, outcome).Inc()
}

func (c *PrometheusCollector) SubscriptionsActive(count int) {
	c.subscriptionsActive.Set(float64(count))
}
