// Package metrics exposes launch outcomes and overlay size to Prometheus.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spaceweb/impactsim/internal/overlay"
	"github.com/spaceweb/impactsim/pkg/core"
)

// Launch outcomes.
const (
	OutcomeResolved = "resolved"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Collector bundles the simulator's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Launches       *prometheus.CounterVec
	Energy         prometheus.Histogram
	LiveLayers     prometheus.Gauge
	LastCasualties prometheus.Gauge
	Recorded       *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice reuses the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	launches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impactsim_launches_total",
		Help: "Launches handled by the overlay coordinator, labeled by outcome.",
	}, []string{"outcome"}), "impactsim_launches_total")
	if err != nil {
		return nil, err
	}

	energy, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "impactsim_impact_energy_megatons",
		Help:    "Energy of resolved impacts in megatons of TNT.",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 10),
	}), "impactsim_impact_energy_megatons")
	if err != nil {
		return nil, err
	}

	layers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impactsim_overlay_layers",
		Help: "Map layers currently tracked by the overlay coordinator.",
	}), "impactsim_overlay_layers")
	if err != nil {
		return nil, err
	}

	casualties, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "impactsim_last_casualties",
		Help: "Estimated casualties of the most recent resolved impact.",
	}), "impactsim_last_casualties")
	if err != nil {
		return nil, err
	}

	recorded, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impactsim_impacts_recorded_total",
		Help: "Impacts written to the history, labeled by material.",
	}, []string{"material"}), "impactsim_impacts_recorded_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Launches:       launches,
		Energy:         energy,
		LiveLayers:     layers,
		LastCasualties: casualties,
		Recorded:       recorded,
	}, nil
}

// Observe updates the metrics from a coordinator snapshot.
func (c *Collector) Observe(s overlay.Snapshot) {
	if c == nil {
		return
	}
	c.LiveLayers.Set(float64(s.Layers))

	switch s.Event {
	case overlay.EventLaunched:
		c.Launches.WithLabelValues(OutcomeResolved).Inc()
		if s.Result != nil {
			c.Energy.Observe(s.Result.EnergyMegatonsTNT)
			c.LastCasualties.Set(float64(s.Result.EstimatedCasualties))
		}
	case overlay.EventLaunchFail:
		c.Launches.WithLabelValues(OutcomeFailed).Inc()
	}
}

// Watch feeds every snapshot published by coord into the collector.
func (c *Collector) Watch(coord *overlay.Coordinator) (cancel func()) {
	c.Observe(coord.Snapshot())
	return coord.Subscribe(c.Observe)
}

// Rejected counts a launch refused before anything was drawn, e.g. without a selection.
func (c *Collector) Rejected() {
	if c == nil {
		return
	}
	c.Launches.WithLabelValues(OutcomeRejected).Inc()
}

// WriteImpact counts a recorded impact.
func (c *Collector) WriteImpact(r core.ImpactRecord) error {
	if c == nil {
		return nil
	}
	material := "custom"
	if m, ok := r.Parameters.Material(); ok {
		material = string(m)
	}
	c.Recorded.WithLabelValues(material).Inc()
	return nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
