package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neej1979/mealplanner/internal/generation"
	"github.com/neej1979/mealplanner/internal/preference"
	"github.com/neej1979/mealplanner/internal/recipe"
)

func mk(id string, cost, protein, fiber float64) recipe.Recipe {
	return recipe.Recipe{
		ID:           id,
		Name:         "Dish " + id,
		Cost:         cost,
		Macros:       recipe.Macros{ProteinG: protein, FiberG: fiber, Kcals: 600},
		Instructions: "Cook it.",
		Origin:       recipe.OriginCurated,
	}
}

func mustCorpus(t *testing.T, recipes ...recipe.Recipe) *recipe.Corpus {
	t.Helper()
	c, err := recipe.NewCorpus(recipes)
	require.NoError(t, err)
	return c
}

func weekRequest(days int, budget float64) PlanRequest {
	return PlanRequest{Days: days, Budget: budget, ProteinFloor: 40, FiberFloor: 6}
}

func filledIDs(sel *Selection) []string {
	var ids []string
	for _, item := range sel.Items {
		if item.Filled() {
			ids = append(ids, item.RecipeID)
		}
	}
	return ids
}

// countingGenerator returns one fresh recipe per call when fresh is set.
type countingGenerator struct {
	calls int
	fresh *recipe.Recipe
	last  generation.Constraints
}

func (g *countingGenerator) Generate(ctx context.Context, c generation.Constraints) ([]recipe.Recipe, generation.Report) {
	g.calls++
	g.last = c
	if g.fresh == nil {
		return nil, generation.Report{Requests: 1, Unavailable: true}
	}
	r := *g.fresh
	r.ID = fmt.Sprintf("%s-%d", g.fresh.ID, g.calls)
	return []recipe.Recipe{r}, generation.Report{Requests: 1}
}

type blockingCollaborator struct{ calls int }

func (b *blockingCollaborator) Propose(ctx context.Context, req generation.Request) ([]generation.Candidate, error) {
	b.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

type relaxationCounter struct{ tiers []string }

func (r *relaxationCounter) ObserveRelaxation(tier string) { r.tiers = append(r.tiers, tier) }

func TestSelector_DayIndicesAreContiguous(t *testing.T) {
	corpus := mustCorpus(t,
		mk("chili", 5, 45, 12),
		mk("salmon", 9, 42, 7),
		mk("tacos", 4, 20, 9),
		mk("steak", 25, 60, 1),
	)
	s := NewSelector(DefaultSelectorConfig(), nil)

	for _, req := range []PlanRequest{
		weekRequest(1, 10),
		weekRequest(7, 100),
		weekRequest(7, 8),
		weekRequest(14, 60),
		{Days: 5, Budget: 3},
	} {
		t.Run(fmt.Sprintf("%dDays_%.0fBudget", req.Days, req.Budget), func(t *testing.T) {
			sel, err := s.Select(context.Background(), req, corpus, nil)
			require.NoError(t, err)
			require.Len(t, sel.Items, req.Days)
			for i, item := range sel.Items {
				assert.Equal(t, i, item.DayIndex)
			}
		})
	}
}

func TestSelector_BudgetNeverExceeded(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		var recipes []recipe.Recipe
		for i := 0; i < 3+rng.Intn(20); i++ {
			recipes = append(recipes, mk(fmt.Sprintf("r%02d", i), 1+rng.Float64()*24, rng.Float64()*70, rng.Float64()*15))
		}
		corpus := mustCorpus(t, recipes...)
		req := PlanRequest{
			Days:         1 + rng.Intn(10),
			Budget:       5 + rng.Float64()*120,
			ProteinFloor: rng.Float64() * 50,
			FiberFloor:   rng.Float64() * 10,
			Servings:     1 + rng.Intn(3),
		}
		cfg := DefaultSelectorConfig()
		cfg.AllowRepeats = rng.Intn(2) == 0
		cfg.RelaxBudgetFirst = rng.Intn(2) == 0

		sel, err := NewSelector(cfg, nil).Select(context.Background(), req, corpus, nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, sel.Spent, req.Budget, "run %d", run)

		plan := NewAssembler().Assemble(sel, req)
		assert.LessOrEqual(t, plan.TotalCost, req.Budget, "run %d", run)
	}
}

func TestSelector_LowRatedChosenLessOften(t *testing.T) {
	// Same dish twice; the disliked id sorts first so only the weight can
	// keep it out.
	disliked := mk("twin-a", 5, 50, 10)
	neutral := mk("twin-b", 5, 50, 10)
	corpus := mustCorpus(t, disliked, neutral)

	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	model := preference.NewModel(preference.DefaultConfig(), func() time.Time { return now })
	weights := model.Compute(map[string][]preference.Rating{
		"twin-a": {
			{RecipeID: "twin-a", Score: 1, RatedAt: now.Add(-24 * time.Hour)},
			{RecipeID: "twin-a", Score: 2, RatedAt: now.Add(-72 * time.Hour)},
		},
	})
	require.Less(t, weights.For("twin-a"), weights.For("twin-b"))

	s := NewSelector(DefaultSelectorConfig(), nil)
	counts := map[string]int{}
	for _, req := range []PlanRequest{
		weekRequest(1, 10),
		weekRequest(1, 50),
		weekRequest(1, 100),
		weekRequest(7, 100),
		weekRequest(5, 40),
	} {
		sel, err := s.Select(context.Background(), req, corpus, weights)
		require.NoError(t, err)
		for _, id := range filledIDs(sel) {
			counts[id]++
		}
	}
	assert.Less(t, counts["twin-a"], counts["twin-b"])
	assert.Equal(t, 2, counts["twin-a"], "only when it is the last fresh recipe")
}

func TestSelector_Deterministic(t *testing.T) {
	corpus := mustCorpus(t,
		mk("a", 5, 45, 8),
		mk("b", 5, 45, 8),
		mk("c", 6, 30, 12),
		mk("d", 3, 10, 2),
		mk("e", 12, 60, 9),
		mk("f", 5, 45, 8),
	)
	weights := preference.Weights{"c": 0.3}
	req := PlanRequest{Days: 7, Budget: 45, ProteinFloor: 40, FiberFloor: 6, Exclude: []string{"e"}}
	gen := &countingGenerator{fresh: &recipe.Recipe{ID: "gen", Name: "Generated Bowl", Cost: 4, Macros: recipe.Macros{ProteinG: 50, FiberG: 10}}}

	run := func() []byte {
		g := *gen
		sel, err := NewSelector(DefaultSelectorConfig(), &g).Select(context.Background(), req, corpus, weights)
		require.NoError(t, err)
		plan := NewAssembler(
			WithClock(func() time.Time { return time.Unix(0, 0) }),
			WithIDSource(func() string { return "plan-1" }),
		).Assemble(sel, req)
		out, err := json.Marshal(struct {
			Sel  *Selection
			Plan *Plan
		}{sel, plan})
		require.NoError(t, err)
		return out
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, string(first), string(run()))
	}
}

func TestSelector_TieBreak(t *testing.T) {
	t.Run("LowerCostWins", func(t *testing.T) {
		cfg := DefaultSelectorConfig()
		cfg.CostPenalty = 0
		corpus := mustCorpus(t, mk("pricey", 8, 50, 10), mk("cheap", 4, 50, 10))
		sel, err := NewSelector(cfg, nil).Select(context.Background(), weekRequest(1, 20), corpus, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"cheap"}, filledIDs(sel))
	})

	t.Run("IDBreaksRemainingTies", func(t *testing.T) {
		corpus := mustCorpus(t, mk("zeta", 5, 50, 10), mk("alpha", 5, 50, 10))
		sel, err := NewSelector(DefaultSelectorConfig(), nil).Select(context.Background(), weekRequest(2, 20), corpus, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "zeta"}, filledIDs(sel))
	})
}

func TestSelector_ThreeRecipesThreeDays(t *testing.T) {
	corpus := mustCorpus(t, mk("five", 5, 50, 10), mk("six", 6, 50, 10), mk("seven", 7, 50, 10))

	sel, err := NewSelector(DefaultSelectorConfig(), nil).Select(context.Background(), weekRequest(3, 18), corpus, nil)
	require.NoError(t, err)

	assert.Empty(t, sel.Unfilled)
	assert.ElementsMatch(t, []string{"five", "six", "seven"}, filledIDs(sel))
	assert.LessOrEqual(t, sel.Spent, 18.0)
	for _, item := range sel.Items {
		assert.Empty(t, item.Relaxed)
	}
}

func TestSelector_SingleRecipeWeek(t *testing.T) {
	corpus := mustCorpus(t, mk("solo", 5, 50, 10))

	t.Run("RepeatsAllowed", func(t *testing.T) {
		sel, err := NewSelector(DefaultSelectorConfig(), nil).Select(context.Background(), weekRequest(7, 100), corpus, nil)
		require.NoError(t, err)
		assert.Len(t, filledIDs(sel), 7)
		assert.Empty(t, sel.Unfilled)
		assert.Equal(t, StatusComplete, NewAssembler().Assemble(sel, weekRequest(7, 100)).Status)
	})

	t.Run("StrictVariety", func(t *testing.T) {
		cfg := DefaultSelectorConfig()
		cfg.AllowRepeats = false
		sel, err := NewSelector(cfg, nil).Select(context.Background(), weekRequest(7, 100), corpus, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"solo"}, filledIDs(sel))
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, sel.Unfilled)
		assert.Equal(t, StatusPartial, NewAssembler().Assemble(sel, weekRequest(7, 100)).Status)
	})
}

func TestSelector_GeneratorAlwaysTimesOut(t *testing.T) {
	const timeout = 30 * time.Millisecond
	collab := &blockingCollaborator{}
	fallback := generation.NewFallback(collab, generation.Config{Timeout: timeout, Retry: true})
	corpus := mustCorpus(t, mk("light-soup", 5, 10, 2))
	req := weekRequest(3, 60)

	start := time.Now()
	sel, err := NewSelector(DefaultSelectorConfig(), fallback).Select(context.Background(), req, corpus, nil)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, timeout*time.Duration(req.Days)+500*time.Millisecond)
	assert.Equal(t, req.Days, collab.calls, "one request per slot, no retry after the deadline")
	assert.True(t, sel.Degraded)
	assert.Empty(t, sel.Generated)
	for _, item := range sel.Items {
		if item.Filled() {
			assert.Equal(t, recipe.OriginCurated, item.Origin)
			assert.Equal(t, []Relaxation{RelaxNutrition}, item.Relaxed)
		}
	}
}

func TestSelector_FallbackAtMostOncePerSlot(t *testing.T) {
	gen := &countingGenerator{}
	corpus := mustCorpus(t, mk("light-soup", 5, 10, 2))

	sel, err := NewSelector(DefaultSelectorConfig(), gen).Select(context.Background(), weekRequest(4, 60), corpus, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, gen.calls)
	assert.Equal(t, 4, sel.FallbackCalls)

	t.Run("NotCalledWhenStrictTierFits", func(t *testing.T) {
		gen := &countingGenerator{}
		corpus := mustCorpus(t, mk("a", 5, 50, 10), mk("b", 6, 50, 10))
		_, err := NewSelector(DefaultSelectorConfig(), gen).Select(context.Background(), weekRequest(2, 40), corpus, nil)
		require.NoError(t, err)
		assert.Zero(t, gen.calls)
	})
}

func TestSelector_UsesGeneratedRecipes(t *testing.T) {
	gen := &countingGenerator{fresh: &recipe.Recipe{ID: "gen-bowl", Name: "Lentil Bowl", Cost: 4, Macros: recipe.Macros{ProteinG: 48, FiberG: 14}, Instructions: "Mix."}}
	corpus := mustCorpus(t, mk("light-soup", 5, 10, 2))
	req := weekRequest(2, 30)
	req.Hint = "vegetarian"
	req.Exclude = []string{"old-favorite"}

	sel, err := NewSelector(DefaultSelectorConfig(), gen).Select(context.Background(), req, corpus, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"gen-bowl-1", "gen-bowl-2"}, filledIDs(sel))
	for _, item := range sel.Items {
		assert.Equal(t, recipe.OriginGenerated, item.Origin)
		assert.Empty(t, item.Relaxed)
	}
	require.Len(t, sel.Generated, 2)
	assert.Equal(t, 1, corpus.Len(), "caller corpus untouched")
	assert.Equal(t, 3, sel.Corpus.Len())

	assert.Equal(t, "vegetarian", gen.last.Hint)
	assert.Contains(t, gen.last.Exclude, "gen-bowl-1")
	assert.Contains(t, gen.last.Exclude, "old-favorite")
	assert.InDelta(t, 26.0, gen.last.MaxCost, 1e-9)
	assert.InDelta(t, 32.0, gen.last.ProteinFloor, 1e-9)
}

func TestSelector_Relaxation(t *testing.T) {
	rich := mk("rich", 20, 50, 10)
	lean := mk("lean", 5, 10, 1)
	corpus := mustCorpus(t, rich, lean)
	req := weekRequest(2, 30)

	t.Run("NutritionBeforeBudget", func(t *testing.T) {
		obs := &relaxationCounter{}
		sel, err := NewSelector(DefaultSelectorConfig(), nil, WithRelaxationObserver(obs)).Select(context.Background(), req, corpus, nil)
		require.NoError(t, err)
		assert.Equal(t, "lean", sel.Items[0].RecipeID)
		assert.Equal(t, []Relaxation{RelaxNutrition}, sel.Items[0].Relaxed)
		assert.NotEmpty(t, obs.tiers)
		assert.LessOrEqual(t, sel.Spent, req.Budget)
	})

	t.Run("BudgetFirst", func(t *testing.T) {
		cfg := DefaultSelectorConfig()
		cfg.RelaxBudgetFirst = true
		sel, err := NewSelector(cfg, nil).Select(context.Background(), req, corpus, nil)
		require.NoError(t, err)
		assert.Equal(t, "rich", sel.Items[0].RecipeID)
		assert.Equal(t, []Relaxation{RelaxBudgetShare}, sel.Items[0].Relaxed)
		assert.Equal(t, "lean", sel.Items[1].RecipeID)
		assert.Equal(t, []Relaxation{RelaxBudgetShare, RelaxNutrition}, sel.Items[1].Relaxed)
		assert.Equal(t, 25.0, sel.Spent)
	})

	t.Run("HardBudgetLeavesSlotUnfilled", func(t *testing.T) {
		corpus := mustCorpus(t, mk("steak", 25, 60, 2))
		sel, err := NewSelector(DefaultSelectorConfig(), nil).Select(context.Background(), weekRequest(2, 30), corpus, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"steak"}, filledIDs(sel))
		assert.Equal(t, []int{1}, sel.Unfilled)
	})
}

func TestSelector_ExclusionsAndGuardrails(t *testing.T) {
	corpus := mustCorpus(t,
		mk("recent", 4, 50, 10),
		recipe.Recipe{ID: "kale-bowl", Name: "Kale Power Bowl", Cost: 3, Macros: recipe.Macros{ProteinG: 50, FiberG: 12}},
		mk("pricey", 30, 70, 12),
		mk("ok", 6, 45, 8),
	)
	cfg := DefaultSelectorConfig()
	cfg.Guardrails = recipe.Guardrails{BannedTokens: []string{"kale"}, MaxCost: 18}
	req := weekRequest(3, 200)
	req.Exclude = []string{"recent"}

	sel, err := NewSelector(cfg, nil).Select(context.Background(), req, corpus, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "ok", "ok"}, filledIDs(sel))
}

func TestSelector_Servings(t *testing.T) {
	corpus := mustCorpus(t, mk("chili", 5, 50, 10))
	req := weekRequest(2, 20)
	req.Servings = 2

	sel, err := NewSelector(DefaultSelectorConfig(), nil).Select(context.Background(), req, corpus, nil)
	require.NoError(t, err)
	assert.Equal(t, 10.0, sel.Items[0].Cost)
	assert.Equal(t, 50.0, sel.Items[0].Macros.ProteinG)
	assert.Equal(t, 20.0, sel.Spent)
}

func TestSelector_Errors(t *testing.T) {
	s := NewSelector(DefaultSelectorConfig(), nil)
	corpus := mustCorpus(t, mk("a", 5, 50, 10))

	t.Run("CorpusEmpty", func(t *testing.T) {
		_, err := s.Select(context.Background(), weekRequest(7, 100), mustCorpus(t), nil)
		assert.True(t, errors.Is(err, ErrCorpusEmpty))
	})

	for name, req := range map[string]PlanRequest{
		"ZeroDays":        {Days: 0, Budget: 10},
		"ZeroBudget":      {Days: 3, Budget: 0},
		"NegativeFloor":   {Days: 3, Budget: 10, ProteinFloor: -1},
		"NegativeServing": {Days: 3, Budget: 10, Servings: -2},
		"NaNBudget":       {Days: 3, Budget: math.NaN()},
		"InfBudget":       {Days: 3, Budget: math.Inf(1)},
		"NaNFloor":        {Days: 3, Budget: 10, FiberFloor: math.NaN()},
		"InfFloor":        {Days: 3, Budget: 10, ProteinFloor: math.Inf(1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Select(context.Background(), req, corpus, nil)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}
