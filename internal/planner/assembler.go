package planner

import (
	"time"

	"github.com/google/uuid"

	"github.com/neej1979/mealplanner/internal/recipe"
)

const dateLayout = "2006-01-02"

// Assembler packages a Selection into a Plan. It does no I/O.
type Assembler struct {
	now   func() time.Time
	newID func() string
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

// WithIDSource overrides the plan id source.
func WithIDSource(newID func() string) AssemblerOption {
	return func(a *Assembler) { a.newID = newID }
}

// NewAssembler creates an Assembler using wall clock time and random UUIDs.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble computes totals and status and stamps id and time.
func (a *Assembler) Assemble(sel *Selection, req PlanRequest) *Plan {
	req = req.withDefaults()

	plan := &Plan{
		ID:          a.newID(),
		WeekStart:   req.WeekStart,
		Days:        req.Days,
		Budget:      req.Budget,
		Servings:    req.Servings,
		Items:       make([]PlanItem, len(sel.Items)),
		Status:      StatusComplete,
		Unfilled:    append([]int(nil), sel.Unfilled...),
		Degraded:    sel.Degraded,
		GeneratedAt: a.now().UTC(),
	}

	seen := make(map[string]bool)
	for i, item := range sel.Items {
		if !req.WeekStart.IsZero() {
			item.Date = req.WeekStart.AddDate(0, 0, item.DayIndex).Format(dateLayout)
		}
		plan.Items[i] = item

		if !item.Filled() {
			continue
		}
		plan.TotalCost += item.Cost
		plan.Macros = plan.Macros.Add(item.Macros)

		if seen[item.RecipeID] {
			continue
		}
		seen[item.RecipeID] = true
		if r, ok := sel.Corpus.Get(item.RecipeID); ok {
			plan.Recipes = append(plan.Recipes, r)
		} else {
			plan.Recipes = append(plan.Recipes, recipe.Recipe{ID: item.RecipeID, Name: item.RecipeName, Origin: item.Origin})
		}
	}

	if len(plan.Unfilled) > 0 {
		plan.Status = StatusPartial
	}
	return plan
}
