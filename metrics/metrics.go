// Package metrics exports container measurements as Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/albertocavalcante/go-modrt/container"
)

var _ container.Observer = (*Collectors)(nil)

// Collectors holds the runtime's Prometheus collectors. It implements
// container.Observer.
type Collectors struct {
	resolveDuration prometheus.Histogram
	resolvedTotal   prometheus.Counter
	unresolvedTotal prometheus.Counter
	refreshDuration prometheus.Histogram
	refreshedTotal  prometheus.Counter
	transitions     *prometheus.CounterVec
	dynamicImports  *prometheus.CounterVec
	activatorErrors *prometheus.CounterVec
	installed       prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		resolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modrt_resolve_duration_seconds",
				Help:    "Time taken by resolve operations.",
				Buckets: prometheus.DefBuckets,
			},
		),
		resolvedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modrt_resolved_bundles_total",
				Help: "Number of bundles that moved to RESOLVED.",
			},
		),
		unresolvedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modrt_resolve_failures_total",
				Help: "Number of bundles left unresolved by a resolve operation.",
			},
		),
		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "modrt_refresh_duration_seconds",
				Help:    "Time taken by refresh operations.",
				Buckets: prometheus.DefBuckets,
			},
		),
		refreshedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modrt_refreshed_bundles_total",
				Help: "Number of bundles re-resolved by refresh operations.",
			},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modrt_bundle_transitions_total",
				Help: "Number of bundle state transitions.",
			},
			[]string{"from", "to"},
		),
		dynamicImports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modrt_dynamic_imports_total",
				Help: "Number of dynamic import resolutions by outcome.",
			},
			[]string{"wired"},
		),
		activatorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modrt_activator_errors_total",
				Help: "Number of failed activator calls.",
			},
			[]string{"op"},
		),
		installed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "modrt_installed_bundles",
				Help: "Number of installed bundles.",
			},
		),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range c.collectors() {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collectors) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.resolveDuration,
		c.resolvedTotal,
		c.unresolvedTotal,
		c.refreshDuration,
		c.refreshedTotal,
		c.transitions,
		c.dynamicImports,
		c.activatorErrors,
		c.installed,
	}
}

// ObserveResolve implements container.Observer.
func (c *Collectors) ObserveResolve(d time.Duration, resolved, failed int) {
	c.resolveDuration.Observe(d.Seconds())
	c.resolvedTotal.Add(float64(resolved))
	c.unresolvedTotal.Add(float64(failed))
}

// ObserveRefresh implements container.Observer.
func (c *Collectors) ObserveRefresh(d time.Duration, bundles int) {
	c.refreshDuration.Observe(d.Seconds())
	c.refreshedTotal.Add(float64(bundles))
}

// ObserveTransition implements container.Observer.
func (c *Collectors) ObserveTransition(from, to container.State) {
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// ObserveDynamicImport implements container.Observer.
func (c *Collectors) ObserveDynamicImport(wired bool) {
	c.dynamicImports.WithLabelValues(strconv.FormatBool(wired)).Inc()
}

// ObserveActivatorError implements container.Observer.
func (c *Collectors) ObserveActivatorError(op string) {
	c.activatorErrors.WithLabelValues(op).Inc()
}

// ObserveInstalled implements container.Observer.
func (c *Collectors) ObserveInstalled(n int) {
	c.installed.Set(float64(n))
}
