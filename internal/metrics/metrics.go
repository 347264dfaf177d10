// Package metrics exposes Prometheus counters for dispense and confirmation
// activity. Scraped via the router's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles all device metrics.
type Collector struct {
	dispensesAttempted prometheus.Counter
	dispensesSucceeded prometheus.Counter
	dispensesFailed    prometheus.Counter

	confirmationsCreated  prometheus.Counter
	confirmationsResolved *prometheus.CounterVec
	confirmationTimeouts  prometheus.Counter

	subscribers prometheus.Gauge
}

// NewCollector creates and registers all metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispensesAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medispender_dispenses_attempted_total",
			Help: "Total number of compartment open attempts",
		}),
		dispensesSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medispender_dispenses_succeeded_total",
			Help: "Total number of successful dispenses",
		}),
		dispensesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medispender_dispenses_failed_total",
			Help: "Total number of dispenses where the actuator reported failure",
		}),
		confirmationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medispender_confirmations_created_total",
			Help: "Total number of confirmation requests created",
		}),
		confirmationsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medispender_confirmations_resolved_total",
			Help: "Total number of confirmations resolved, by source",
		}, []string{"source"}),
		confirmationTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medispender_confirmation_timeouts_total",
			Help: "Total number of confirmations that expired unacknowledged",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medispender_event_subscribers",
			Help: "Current number of live event stream subscribers",
		}),
	}

	reg.MustRegister(
		c.dispensesAttempted,
		c.dispensesSucceeded,
		c.dispensesFailed,
		c.confirmationsCreated,
		c.confirmationsResolved,
		c.confirmationTimeouts,
		c.subscribers,
	)
	return c
}

// RecordDispense counts one open attempt and its outcome.
func (c *Collector) RecordDispense(success bool) {
	c.dispensesAttempted.Inc()
	if success {
		c.dispensesSucceeded.Inc()
	} else {
		c.dispensesFailed.Inc()
	}
}

// RecordConfirmationCreated counts a new pending confirmation.
func (c *Collector) RecordConfirmationCreated() {
	c.confirmationsCreated.Inc()
}

// RecordConfirmed counts an acknowledged confirmation by source.
func (c *Collector) RecordConfirmed(source string) {
	c.confirmationsResolved.WithLabelValues(source).Inc()
}

// RecordTimeout counts an expired confirmation.
func (c *Collector) RecordTimeout() {
	c.confirmationTimeouts.Inc()
}

// SetSubscribers updates the live subscriber gauge.
func (c *Collector) SetSubscribers(n int) {
	c.subscribers.Set(float64(n))
}
