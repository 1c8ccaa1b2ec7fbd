package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/neej1979/mealplanner/internal/recipe"
)

var (
	// ErrCorpusEmpty means there is nothing to plan with at all.
	ErrCorpusEmpty = errors.New("recipe corpus is empty")
	// ErrInvalidRequest wraps every PlanRequest validation failure.
	ErrInvalidRequest = errors.New("invalid plan request")
)

// PlanStatus tells complete plans apart from plans with unfilled days.
type PlanStatus string

const (
	StatusComplete PlanStatus = "COMPLETE"
	StatusPartial  PlanStatus = "PARTIAL"
)

// SlotStatus is the outcome of one day slot.
type SlotStatus string

const (
	SlotFilled   SlotStatus = "filled"
	SlotUnfilled SlotStatus = "unfilled"
)

// Relaxation names a soft constraint that was dropped to fill a slot.
type Relaxation string

const (
	RelaxNutrition   Relaxation = "nutrition"
	RelaxBudgetShare Relaxation = "budget_share"
)

// PlanRequest describes the week to plan. Floors are per person per day and
// are aggregated across the period, so a protein-rich day can make up for a
// lighter one.
type PlanRequest struct {
	Days         int       `json:"days"`
	Budget       float64   `json:"budget"`
	ProteinFloor float64   `json:"protein_floor"`
	FiberFloor   float64   `json:"fiber_floor"`
	Exclude      []string  `json:"exclude,omitempty"`
	Servings     int       `json:"servings"`
	Hint         string    `json:"hint,omitempty"`
	WeekStart    time.Time `json:"week_start"`
}

// Validate rejects requests no plan can be built for.
func (r PlanRequest) Validate() error {
	switch {
	case r.Days < 1:
		return fmt.Errorf("%w: days must be >= 1, got %d", ErrInvalidRequest, r.Days)
	case !recipe.NonNegative(r.Budget) || r.Budget == 0:
		return fmt.Errorf("%w: budget must be finite and > 0, got %v", ErrInvalidRequest, r.Budget)
	case !recipe.NonNegative(r.ProteinFloor) || !recipe.NonNegative(r.FiberFloor):
		return fmt.Errorf("%w: nutrition floors must be finite and >= 0", ErrInvalidRequest)
	case r.Servings < 0:
		return fmt.Errorf("%w: servings must be >= 1", ErrInvalidRequest)
	}
	return nil
}

func (r PlanRequest) withDefaults() PlanRequest {
	if r.Servings == 0 {
		r.Servings = 1
	}
	return r
}

// PlanItem is the assignment of one day. Cost is realized for all servings;
// Macros are per serving.
type PlanItem struct {
	DayIndex   int           `json:"day_index"`
	Date       string        `json:"date,omitempty"`
	RecipeID   string        `json:"recipe_id,omitempty"`
	RecipeName string        `json:"recipe_name,omitempty"`
	Origin     recipe.Origin `json:"origin,omitempty"`
	Cost       float64       `json:"cost"`
	Macros     recipe.Macros `json:"macros"`
	Status     SlotStatus    `json:"status"`
	Relaxed    []Relaxation  `json:"relaxed,omitempty"`
}

// Filled reports whether the slot holds a recipe.
func (i PlanItem) Filled() bool { return i.Status == SlotFilled }

// Plan is the packaged result of one planning run.
type Plan struct {
	ID          string          `json:"id"`
	WeekStart   time.Time       `json:"week_start"`
	Days        int             `json:"days"`
	Budget      float64         `json:"budget"`
	Servings    int             `json:"servings"`
	Items       []PlanItem      `json:"items"`
	TotalCost   float64         `json:"total_cost"`
	Macros      recipe.Macros   `json:"macros"`
	Status      PlanStatus      `json:"status"`
	Unfilled    []int           `json:"unfilled,omitempty"`
	Recipes     []recipe.Recipe `json:"recipes"`
	Degraded    bool            `json:"degraded,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Recipe returns the recipe with the given id from the plan.
func (p *Plan) Recipe(id string) (recipe.Recipe, bool) {
	for _, r := range p.Recipes {
		if r.ID == id {
			return r, true
		}
	}
	return recipe.Recipe{}, false
}

// GeneratedRecipes returns the recipes created during the run.
func (p *Plan) GeneratedRecipes() []recipe.Recipe {
	var out []recipe.Recipe
	for _, r := range p.Recipes {
		if r.Origin == recipe.OriginGenerated {
			out = append(out, r)
		}
	}
	return out
}
