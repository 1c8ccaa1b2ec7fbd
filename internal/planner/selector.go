package planner

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/neej1979/mealplanner/internal/generation"
	"github.com/neej1979/mealplanner/internal/logging"
	"github.com/neej1979/mealplanner/internal/preference"
	"github.com/neej1979/mealplanner/internal/recipe"
)

// Generator is the fallback the selector calls when no recipe fits a slot.
type Generator interface {
	Generate(ctx context.Context, c generation.Constraints) ([]recipe.Recipe, generation.Report)
}

// RelaxationObserver is told about every slot filled by a relaxed tier.
type RelaxationObserver interface {
	ObserveRelaxation(tier string)
}

// SelectorConfig holds the ranking and relaxation tunables.
type SelectorConfig struct {
	// CostPenalty scales the cost term, normalized by the per-day budget
	// share.
	CostPenalty float64
	// VarietyBonus rewards a cooking method or protein group not used yet.
	VarietyBonus float64
	// AllowRepeats lets recipes repeat once every eligible recipe is used.
	AllowRepeats bool
	// RelaxBudgetFirst drops the per-day budget share before the nutrition
	// floor.
	RelaxBudgetFirst bool
	// Guardrails are never relaxed.
	Guardrails recipe.Guardrails
}

// DefaultSelectorConfig returns the tunables used when nothing is configured.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		CostPenalty:  0.5,
		VarietyBonus: 0.15,
		AllowRepeats: true,
	}
}

// Selection is the raw output of Select, before packaging.
type Selection struct {
	Items         []PlanItem      `json:"items"`
	Unfilled      []int           `json:"unfilled,omitempty"`
	Spent         float64         `json:"spent"`
	Generated     []recipe.Recipe `json:"generated,omitempty"`
	FallbackCalls int             `json:"fallback_calls"`
	Degraded      bool            `json:"degraded,omitempty"`

	// Corpus is the run-local corpus including generated recipes.
	Corpus *recipe.Corpus `json:"-"`
}

// Selector assigns one recipe per day with a bounded greedy procedure.
type Selector struct {
	cfg      SelectorConfig
	gen      Generator
	logger   *zap.Logger
	observer RelaxationObserver
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithSelectorLogger sets the logger.
func WithSelectorLogger(l *zap.Logger) SelectorOption {
	return func(s *Selector) { s.logger = logging.OrNop(l) }
}

// WithRelaxationObserver sets the relaxation observer.
func WithRelaxationObserver(o RelaxationObserver) SelectorOption {
	return func(s *Selector) { s.observer = o }
}

// NewSelector creates a Selector. gen may be nil, in which case slots the
// corpus cannot fill go straight to relaxation.
func NewSelector(cfg SelectorConfig, gen Generator, opts ...SelectorOption) *Selector {
	s := &Selector{cfg: cfg, gen: gen, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// tier is one admissibility level tried for a slot.
type tier struct {
	name          string
	keepShare     bool
	keepNutrition bool
	relaxed       []Relaxation
}

const tierGenerated = "generated"

func (s *Selector) relaxedTiers() []tier {
	if s.cfg.RelaxBudgetFirst {
		return []tier{
			{name: string(RelaxBudgetShare), keepNutrition: true, relaxed: []Relaxation{RelaxBudgetShare}},
			{name: "hard_budget", relaxed: []Relaxation{RelaxBudgetShare, RelaxNutrition}},
		}
	}
	return []tier{
		{name: string(RelaxNutrition), keepShare: true, relaxed: []Relaxation{RelaxNutrition}},
		{name: "hard_budget", relaxed: []Relaxation{RelaxNutrition, RelaxBudgetShare}},
	}
}

// slotState is the cumulative state the next slot is decided against.
type slotState struct {
	day         int
	share       float64
	residualP   float64
	residualF   float64
	costRef     float64
	usedMethods map[string]bool
	usedGroups  map[string]bool
	usedRecipes map[string]bool
	excluded    map[string]bool
	servings    float64
	totalBudget float64
	spentSoFar  float64
}

func (st *slotState) realized(r recipe.Recipe) float64 {
	return r.Cost * st.servings
}

// admissible applies the hard budget check plus the soft checks kept by t.
func (st *slotState) admissible(r recipe.Recipe, t tier) bool {
	cost := st.realized(r)
	if st.spentSoFar+cost > st.totalBudget {
		return false
	}
	if t.keepShare && cost > st.share {
		return false
	}
	if t.keepNutrition && (r.Macros.ProteinG < st.residualP || r.Macros.FiberG < st.residualF) {
		return false
	}
	return true
}

// score ranks a candidate: preference weight times nutrition fit plus
// variety, minus the normalized cost.
func (s *Selector) score(st *slotState, r recipe.Recipe, weight float64) float64 {
	costNorm := st.realized(r) / st.costRef

	coverage, floors := 0.0, 0
	if st.residualP > 0 {
		coverage += math.Min(r.Macros.ProteinG/st.residualP, 1)
		floors++
	}
	if st.residualF > 0 {
		coverage += math.Min(r.Macros.FiberG/st.residualF, 1)
		floors++
	}
	fit := 1.0
	if floors > 0 {
		coverage /= float64(floors)
		if coverage < 1 {
			// Unmet floors favor nutrients per unit of cost.
			fit = 0.5 + 0.5*coverage/(1+costNorm)
		}
	}

	bonus := 0.0
	if r.Method != "" && !st.usedMethods[strings.ToLower(r.Method)] {
		bonus += s.cfg.VarietyBonus
	}
	if g := recipe.ProteinGroup(r); g != "other" && !st.usedGroups[g] {
		bonus += s.cfg.VarietyBonus
	}

	return weight*(fit+bonus) - s.cfg.CostPenalty*costNorm
}

type scored struct {
	recipe recipe.Recipe
	score  float64
	cost   float64
}

func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	return a.recipe.ID < b.recipe.ID
}

// pool returns the recipes eligible for the slot before tier checks.
func (s *Selector) pool(st *slotState, corpus *recipe.Corpus) []recipe.Recipe {
	var fresh, all []recipe.Recipe
	for _, r := range corpus.Snapshot() {
		if st.excluded[r.ID] || !s.cfg.Guardrails.Allows(r) {
			continue
		}
		all = append(all, r)
		if !st.usedRecipes[r.ID] {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 && s.cfg.AllowRepeats {
		return all
	}
	return fresh
}

func (s *Selector) best(st *slotState, pool []recipe.Recipe, t tier, weights preference.Weights) (scored, bool) {
	var (
		top   scored
		found bool
	)
	for _, r := range pool {
		if !st.admissible(r, t) {
			continue
		}
		c := scored{recipe: r, score: s.score(st, r, weights.For(r.ID)), cost: st.realized(r)}
		if !found || better(c, top) {
			top, found = c, true
		}
	}
	return top, found
}

// Select fills req.Days slots in order. Each slot tries the strict tier,
// then at most one generation fallback, then the relaxation tiers. A slot
// that survives every tier stays unfilled; that is reported, not an error.
func (s *Selector) Select(ctx context.Context, req PlanRequest, corpus *recipe.Corpus, weights preference.Weights) (*Selection, error) {
	req = req.withDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if corpus.Len() == 0 {
		return nil, ErrCorpusEmpty
	}

	excluded := make(map[string]bool, len(req.Exclude))
	for _, id := range req.Exclude {
		excluded[id] = true
	}

	sel := &Selection{Items: make([]PlanItem, 0, req.Days)}
	working := corpus
	var acc recipe.Macros
	used := make(map[string]bool)
	methods := make(map[string]bool)
	groups := make(map[string]bool)
	strict := tier{name: "strict", keepShare: true, keepNutrition: true}

	for day := 0; day < req.Days; day++ {
		remainingDays := float64(req.Days - day)
		remaining := req.Budget - sel.Spent
		st := &slotState{
			day:         day,
			share:       remaining / remainingDays,
			residualP:   math.Max(0, req.ProteinFloor*float64(req.Days)-acc.ProteinG) / remainingDays,
			residualF:   math.Max(0, req.FiberFloor*float64(req.Days)-acc.FiberG) / remainingDays,
			costRef:     req.Budget / float64(req.Days),
			usedMethods: methods,
			usedGroups:  groups,
			usedRecipes: used,
			excluded:    excluded,
			servings:    float64(req.Servings),
			totalBudget: req.Budget,
			spentSoFar:  sel.Spent,
		}
		if st.share > 0 {
			st.costRef = st.share
		}

		pick, ok := s.best(st, s.pool(st, working), strict, weights)
		tierName := strict.name
		var relaxed []Relaxation

		if !ok && s.gen != nil {
			working = s.fallback(ctx, req, st, working, sel)
			pick, ok = s.best(st, s.pool(st, working), strict, weights)
			tierName = tierGenerated
		}
		if !ok {
			for _, t := range s.relaxedTiers() {
				if pick, ok = s.best(st, s.pool(st, working), t, weights); ok {
					tierName = t.name
					relaxed = t.relaxed
					break
				}
			}
		}

		if !ok {
			s.logger.Warn("slot left unfilled", zap.Int("day", day), zap.Float64("remaining_budget", remaining))
			sel.Items = append(sel.Items, PlanItem{DayIndex: day, Status: SlotUnfilled})
			sel.Unfilled = append(sel.Unfilled, day)
			continue
		}

		r := pick.recipe
		if len(relaxed) > 0 {
			s.logger.Info("slot filled with relaxed constraints",
				zap.Int("day", day), zap.String("recipe_id", r.ID), zap.String("tier", tierName))
			if s.observer != nil {
				s.observer.ObserveRelaxation(tierName)
			}
		} else {
			s.logger.Debug("slot filled", zap.Int("day", day), zap.String("recipe_id", r.ID), zap.String("tier", tierName))
		}

		sel.Items = append(sel.Items, PlanItem{
			DayIndex:   day,
			RecipeID:   r.ID,
			RecipeName: r.Name,
			Origin:     r.Origin,
			Cost:       pick.cost,
			Macros:     r.Macros,
			Status:     SlotFilled,
			Relaxed:    relaxed,
		})
		sel.Spent += pick.cost
		acc = acc.Add(r.Macros)
		used[r.ID] = true
		if r.Method != "" {
			methods[strings.ToLower(r.Method)] = true
		}
		groups[recipe.ProteinGroup(r)] = true
	}

	sel.Corpus = working
	sel.Generated = working.Added(corpus)
	return sel, nil
}

// fallback asks the generator for candidates fitting the slot and returns
// the augmented corpus.
func (s *Selector) fallback(ctx context.Context, req PlanRequest, st *slotState, working *recipe.Corpus, sel *Selection) *recipe.Corpus {
	exclude := make([]string, 0, len(st.excluded)+len(st.usedRecipes))
	for _, r := range working.Snapshot() {
		if st.excluded[r.ID] || st.usedRecipes[r.ID] {
			exclude = append(exclude, r.ID)
		}
	}
	for _, id := range req.Exclude {
		if _, ok := working.Get(id); !ok {
			exclude = append(exclude, id)
		}
	}

	cons := generation.Constraints{
		Day:          st.day,
		MaxCost:      st.share / st.servings,
		ProteinFloor: st.residualP,
		FiberFloor:   st.residualF,
		Exclude:      exclude,
		Hint:         req.Hint,
	}
	recipes, report := s.gen.Generate(ctx, cons)
	sel.FallbackCalls++
	if report.Unavailable {
		sel.Degraded = true
	}
	if len(recipes) == 0 {
		return working
	}
	for i := range recipes {
		recipes[i].Origin = recipe.OriginGenerated
	}
	return working.Augment(recipes)
}
