// Package status provides the purely observational HTTP surface from
// §9: a dashboard of active calls and registrations, and a Prometheus
// /metrics endpoint. Nothing in this package ever mutates the call map,
// the location table, or CSeq state.
package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tinysip/internal/callmap"
)

// Metrics implements dialog.Metrics and adds a REGISTER-outcome counter,
// grounded on arzzra-soft_phone's use of prometheus/client_golang for
// call-engine metrics.
type Metrics struct {
	invitesRouted    prometheus.Counter
	callsTerminal    *prometheus.CounterVec
	registerOutcomes *prometheus.CounterVec
}

// NewMetrics registers every collector against reg, including a gauge
// that reads the call map's live occupancy on each scrape.
func NewMetrics(reg prometheus.Registerer, calls *callmap.Map) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		invitesRouted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tinysip_invites_routed_total",
			Help: "Total number of initial INVITEs successfully routed to a callee.",
		}),
		callsTerminal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tinysip_calls_terminal_total",
			Help: "Total number of calls reaching a terminal disposition, by disposition.",
		}, []string{"disposition"}),
		registerOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tinysip_register_outcomes_total",
			Help: "Total number of REGISTER requests, by outcome.",
		}, []string{"outcome"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tinysip_calls_active",
		Help: "Number of call-map slots currently occupied.",
	}, func() float64 {
		return float64(calls.ActiveCount())
	})

	return m
}

// InviteRouted implements dialog.Metrics.
func (m *Metrics) InviteRouted() {
	m.invitesRouted.Inc()
}

// CallTerminal implements dialog.Metrics.
func (m *Metrics) CallTerminal(disposition string) {
	m.callsTerminal.WithLabelValues(disposition).Inc()
}

// RegisterOutcome records a REGISTER result ("success" or "not_found").
func (m *Metrics) RegisterOutcome(outcome string) {
	m.registerOutcomes.WithLabelValues(outcome).Inc()
}
