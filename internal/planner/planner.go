// Package planner selects one dinner per day under a budget and nutrition
// floors and packages the result as a Plan.
package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/neej1979/mealplanner/internal/logging"
	"github.com/neej1979/mealplanner/internal/preference"
	"github.com/neej1979/mealplanner/internal/recipe"
)

// PlanObserver is told about every assembled plan.
type PlanObserver interface {
	ObservePlan(status string, unfilled int, cost, budget float64)
}

// Planner runs one planning pass: weights, selection, assembly.
type Planner struct {
	selector  *Selector
	assembler *Assembler
	model     *preference.Model
	logger    *zap.Logger
	observer  PlanObserver
}

// NewPlanner creates a new Planner instance. observer and logger may be nil.
func NewPlanner(selector *Selector, assembler *Assembler, model *preference.Model, observer PlanObserver, logger *zap.Logger) *Planner {
	return &Planner{
		selector:  selector,
		assembler: assembler,
		model:     model,
		logger:    logging.OrNop(logger),
		observer:  observer,
	}
}

// Plan builds a plan from the corpus. Ratings are read once into a weight
// snapshot; the corpus is never modified.
func (p *Planner) Plan(ctx context.Context, req PlanRequest, corpus *recipe.Corpus, ratings map[string][]preference.Rating) (*Plan, error) {
	weights := p.model.Compute(ratings)

	sel, err := p.selector.Select(ctx, req, corpus, weights)
	if err != nil {
		return nil, fmt.Errorf("failed to select recipes: %w", err)
	}

	plan := p.assembler.Assemble(sel, req)

	fields := []zap.Field{
		zap.String("plan_id", plan.ID),
		zap.String("status", string(plan.Status)),
		zap.Float64("total_cost", plan.TotalCost),
		zap.Float64("budget", plan.Budget),
		zap.Int("unfilled", len(plan.Unfilled)),
		zap.Int("generated", len(sel.Generated)),
		zap.Int("fallback_calls", sel.FallbackCalls),
	}
	if plan.Status == StatusPartial {
		p.logger.Warn("partial plan assembled", fields...)
	} else {
		p.logger.Info("plan assembled", fields...)
	}
	if sel.Degraded {
		p.logger.Warn("plan built in degraded mode, generation was unavailable", zap.String("plan_id", plan.ID))
	}

	if p.observer != nil {
		p.observer.ObservePlan(string(plan.Status), len(plan.Unfilled), plan.TotalCost, plan.Budget)
	}
	return plan, nil
}
