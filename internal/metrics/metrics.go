// Package metrics holds the Prometheus collectors for the governance pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"docgov/internal/model"
)

// Governance counts pipeline outcomes.
type Governance struct {
	decisions   *prometheus.CounterVec
	overrides   *prometheus.CounterVec
	publishFail *prometheus.CounterVec
	recovered   prometheus.Counter
}

// NewGovernance creates the collectors and registers them on reg.
func NewGovernance(reg prometheus.Registerer) (*Governance, error) {
	g := &Governance{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgov_decisions_total",
				Help: "Governance decisions by outcome, role and document type.",
			},
			[]string{"decision", "role", "doc_type"},
		),
		overrides: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgov_review_overrides_total",
				Help: "Reviewer overrides by action and result.",
			},
			[]string{"action", "result"},
		),
		publishFail: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgov_publish_failures_total",
				Help: "Events that could not be published after retries.",
			},
			[]string{"topic"},
		),
		recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docgov_recovered_documents_total",
			Help: "Stale ingested documents re-driven by the recovery sweep.",
		}),
	}
	for _, c := range []prometheus.Collector{g.decisions, g.overrides, g.publishFail, g.recovered} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Nop returns collectors registered nowhere, for tests and tools.
func Nop() *Governance {
	g, _ := NewGovernance(prometheus.NewRegistry())
	return g
}

func (g *Governance) Decision(d model.Decision, role model.Role, docType string) {
	g.decisions.WithLabelValues(string(d.Kind), role.String(), docType).Inc()
}

func (g *Governance) Override(action, result string) {
	g.overrides.WithLabelValues(action, result).Inc()
}

func (g *Governance) PublishFailed(topic string) {
	g.publishFail.WithLabelValues(topic).Inc()
}

func (g *Governance) Recovered() {
	g.recovered.Inc()
}
