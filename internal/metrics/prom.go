package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mealplanner"

// Planner exposes Prometheus counters for planning runs. A nil *Planner is a
// valid no-op.
type Planner struct {
	plans         *prometheus.CounterVec
	unfilled      prometheus.Counter
	relaxations   *prometheus.CounterVec
	generations   *prometheus.CounterVec
	rejected      prometheus.Counter
	planCostRatio prometheus.Histogram
}

// NewPlanner registers the planner collectors on reg.
func NewPlanner(reg prometheus.Registerer) *Planner {
	factory := promauto.With(reg)
	return &Planner{
		plans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Plans assembled, by status.",
		}, []string{"status"}),
		unfilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unfilled_slots_total",
			Help:      "Plan slots left empty after every relaxation tier.",
		}),
		relaxations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relaxations_total",
			Help:      "Slots filled only after relaxing a soft constraint, by tier.",
		}, []string{"tier"}),
		generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Generation fallback invocations, by outcome.",
		}, []string{"outcome"}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_rejected_candidates_total",
			Help:      "Generated candidates discarded by validation, guardrails or exclusions.",
		}),
		planCostRatio: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_budget_utilization_ratio",
			Help:      "Total plan cost divided by budget.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}
}

// ObservePlan records a finished plan.
func (p *Planner) ObservePlan(status string, unfilled int, cost, budget float64) {
	if p == nil {
		return
	}
	p.plans.WithLabelValues(status).Inc()
	p.unfilled.Add(float64(unfilled))
	if budget > 0 {
		p.planCostRatio.Observe(cost / budget)
	}
}

// ObserveRelaxation records a slot filled by a relaxed tier.
func (p *Planner) ObserveRelaxation(tier string) {
	if p == nil {
		return
	}
	p.relaxations.WithLabelValues(tier).Inc()
}

// ObserveGeneration records one generation fallback call.
func (p *Planner) ObserveGeneration(outcome string, rejected int) {
	if p == nil {
		return
	}
	p.generations.WithLabelValues(outcome).Inc()
	p.rejected.Add(float64(rejected))
}
