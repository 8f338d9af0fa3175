// Package metrics exposes the simulator's run-time counters over
// Prometheus's exposition format via github.com/prometheus/client_golang.
// The reference monitoring subsystem uses this same dependency only to
// query an already-running Prometheus server for a target system's
// metrics; a discrete-event simulator has no such external target, so
// this package uses the library's other half — registration and HTTP
// exposition — to publish the simulator's own counters instead.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the simulator's exported series: per-device
// transmission/success counters, per-gateway lost/collided counters and
// demodulator-occupancy gauge, and network-wide energy/reception-ratio/
// simulated-time gauges.
type Registry struct {
	reg *prometheus.Registry

	PacketsTransmitted *prometheus.CounterVec
	PacketsSucceeded   *prometheus.CounterVec
	PacketsLost        *prometheus.CounterVec
	PacketsCollided    *prometheus.CounterVec

	DemodulatorOccupancy *prometheus.GaugeVec

	EnergyJoulesTotal   prometheus.Gauge
	ReceptionRatio      prometheus.Gauge
	SimulatedTimeMsGauge prometheus.Gauge
}

// New builds a fresh, independently-registered Registry so multiple
// simulation runs in one process (e.g. a parameter sweep) never collide
// on metric names.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		PacketsTransmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lora_sim_packets_transmitted_total",
			Help: "Total packets transmitted, by device id.",
		}, []string{"device"}),
		PacketsSucceeded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lora_sim_packets_succeeded_total",
			Help: "Total packets successfully acknowledged, by device id.",
		}, []string{"device"}),
		PacketsLost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lora_sim_packets_lost_total",
			Help: "Total packets lost at a gateway, by gateway id.",
		}, []string{"gateway"}),
		PacketsCollided: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lora_sim_packets_collided_total",
			Help: "Total packets flagged collided at a gateway, by gateway id.",
		}, []string{"gateway"}),
		DemodulatorOccupancy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lora_sim_demodulator_occupancy",
			Help: "Current demodulator slots in use, by gateway id.",
		}, []string{"gateway"}),
		EnergyJoulesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lora_sim_energy_joules_total",
			Help: "Total energy consumed across all devices, in joules.",
		}),
		ReceptionRatio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lora_sim_packet_reception_ratio",
			Help: "Network-wide packets succeeded / packets transmitted.",
		}),
		SimulatedTimeMsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lora_sim_simulated_time_ms",
			Help: "Current simulated clock time, in milliseconds.",
		}),
	}
}

// Handler returns the HTTP handler serving this registry's metrics in
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
