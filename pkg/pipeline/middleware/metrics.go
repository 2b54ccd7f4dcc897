// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package middleware

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// MetricsID is the middleware id of Metrics.
const MetricsID = "metrics"

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metric namespace (default: "msgpipe").
	Namespace string
	// Subsystem is the metric subsystem (default: "pipeline").
	Subsystem string
	// Registerer receives the collectors. If nil, a new registry is created.
	Registerer prometheus.Registerer
	// DurationBuckets are the histogram buckets in seconds.
	DurationBuckets []float64
}

// DefaultMetricsConfig returns the default configuration with a private registry.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:       "msgpipe",
		Subsystem:       "pipeline",
		Registerer:      prometheus.NewRegistry(),
		DurationBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// Metrics counts dispatches and observes handler durations per kind,
// status and content type.
type Metrics struct {
	dispatched *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics(config *MetricsConfig) (*Metrics, error) {
	defaults := DefaultMetricsConfig()
	if config == nil {
		config = defaults
	}
	if config.Namespace == "" {
		config.Namespace = defaults.Namespace
	}
	if config.Subsystem == "" {
		config.Subsystem = defaults.Subsystem
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.NewRegistry()
	}
	if config.DurationBuckets == nil {
		config.DurationBuckets = defaults.DurationBuckets
	}

	m := &Metrics{
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "messages_total",
				Help:      "Total number of dispatched messages by final status",
			},
			[]string{"kind", "status", "content_type"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "handler_duration_seconds",
				Help:      "Time spent in message handlers",
				Buckets:   config.DurationBuckets,
			},
			[]string{"kind", "content_type"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "messages_in_flight",
				Help:      "Messages currently inside a pipeline",
			},
			[]string{"kind"},
		),
	}
	for _, c := range []prometheus.Collector{m.dispatched, m.duration, m.inFlight} {
		if err := config.Registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ID implements pipeline.Middleware.
func (m *Metrics) ID() string { return MetricsID }

type inFlightKey struct{}

// Execute marks the message as in flight.
func (m *Metrics) Execute(mc *pipeline.MessageContext) error {
	m.inFlight.WithLabelValues(mc.Message.Kind.String()).Inc()
	mc.Set(inFlightKey{}, true)
	return nil
}

// PostAction records the outcome.
func (m *Metrics) PostAction(mc *pipeline.MessageContext) error {
	msg := mc.Message
	kind := msg.Kind.String()
	// post-actions also run when Execute was skipped
	if _, ok := mc.Get(inFlightKey{}); ok {
		mc.Delete(inFlightKey{})
		m.inFlight.WithLabelValues(kind).Dec()
	}
	m.dispatched.WithLabelValues(kind, msg.Status().String(), msg.ContentType).Inc()
	if msg.HasDuration() {
		m.duration.WithLabelValues(kind, msg.ContentType).Observe(msg.Duration().Seconds())
	}
	return nil
}
