// Package metrics holds the Prometheus collectors of the quota subsystem.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gtin_api"

const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeFailOpen = "fail_open"
)

type Metrics struct {
	Decisions           *prometheus.CounterVec
	StoreErrors         *prometheus.CounterVec
	UsageWriteFailures  *prometheus.CounterVec
	PolicyMisconfigured prometheus.Counter
}

// New registers the collectors with reg, reusing collectors that are
// already registered under the same name.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	decisions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Admission decisions partitioned by endpoint class and outcome.",
	}, []string{"class", "outcome"}))
	if err != nil {
		return nil, err
	}

	storeErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Shared store failures partitioned by operation.",
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}

	usageFailures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "usage_write_failures_total",
		Help:      "Usage metering writes that failed and were dropped.",
	}, []string{"subject"}))
	if err != nil {
		return nil, err
	}

	misconfigured := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_misconfigurations_total",
		Help:      "Policy lookups that fell back to the strictest policy.",
	})
	if err := reg.Register(misconfigured); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register policy collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("existing policy collector has unexpected type %T", already.ExistingCollector)
		}
		misconfigured = existing
	}

	return &Metrics{
		Decisions:           decisions,
		StoreErrors:         storeErrors,
		UsageWriteFailures:  usageFailures,
		PolicyMisconfigured: misconfigured,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (m *Metrics) Decision(class, outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) UsageWriteFailed(subject string) {
	if m == nil {
		return
	}
	m.UsageWriteFailures.WithLabelValues(subject).Inc()
}

func (m *Metrics) PolicyFallback() {
	if m == nil {
		return
	}
	m.PolicyMisconfigured.Inc()
}
