package export

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neej1979/mealplanner/internal/llm"
	"github.com/neej1979/mealplanner/internal/planner"
	"github.com/neej1979/mealplanner/internal/recipe"
	"github.com/neej1979/mealplanner/internal/shared"
	"github.com/neej1979/mealplanner/internal/shopping"
)

type mockTextGenerator struct {
	response string
	err      error
	calls    int
}

func (m *mockTextGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.calls++
	if m.err != nil {
		return llm.ContentResponse{}, m.err
	}
	return llm.ContentResponse{Content: m.response, Usage: shared.TokenUsage{TotalTokens: 10}}, nil
}

type metaSink struct{ metas []shared.AgentMeta }

func (m *metaSink) RecordMeta(meta shared.AgentMeta) error {
	m.metas = append(m.metas, meta)
	return nil
}

func samplePlan() *planner.Plan {
	chili := recipe.Recipe{
		ID: "chili", Name: "Turkey Chili", Cost: 5, Method: "stovetop", Minutes: 40,
		Macros:       recipe.Macros{ProteinG: 45, FiberG: 12},
		Ingredients:  []recipe.Ingredient{{Item: "ground turkey", Qty: "1 lb"}, {Item: "beans", Qty: "2"}},
		Instructions: "1. Brown the turkey.\n2. Simmer with beans.",
		Origin:       recipe.OriginCurated,
	}
	dal := recipe.Recipe{
		ID: "gen-dal", Name: "Red Lentil Dal", Cost: 3, Method: "onepot",
		Macros:      recipe.Macros{ProteinG: 40, FiberG: 15},
		Ingredients: []recipe.Ingredient{{Item: "red lentils", Qty: "1 cup"}},
		Origin:      recipe.OriginGenerated,
	}
	return &planner.Plan{
		ID:        "plan-1",
		WeekStart: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Days:      3,
		Budget:    20,
		Servings:  1,
		Items: []planner.PlanItem{
			{DayIndex: 0, Date: "2025-03-10", RecipeID: "chili", RecipeName: chili.Name, Origin: recipe.OriginCurated, Cost: 5, Macros: chili.Macros, Status: planner.SlotFilled},
			{DayIndex: 1, Date: "2025-03-11", Status: planner.SlotUnfilled},
			{DayIndex: 2, Date: "2025-03-12", RecipeID: "gen-dal", RecipeName: dal.Name, Origin: recipe.OriginGenerated, Cost: 3, Macros: dal.Macros, Status: planner.SlotFilled, Relaxed: []planner.Relaxation{planner.RelaxNutrition}},
		},
		TotalCost: 8,
		Macros:    recipe.Macros{ProteinG: 85, FiberG: 27},
		Status:    planner.StatusPartial,
		Unfilled:  []int{1},
		Recipes:   []recipe.Recipe{chili, dal},
	}
}

func TestPlanText(t *testing.T) {
	text := PlanText(samplePlan())

	assert.Contains(t, text, "Week of 2025-03-10")
	assert.Contains(t, text, "Estimated cost: $8.00 of $20.00 budget")
	assert.Contains(t, text, "Status: PARTIAL (1 unfilled)")
	assert.Contains(t, text, "Mon 2025-03-10: Turkey Chili [curated] (40 min, stovetop)  [Protein 45 g | Fiber 12 g | $5.00]")
	assert.Contains(t, text, "Tue 2025-03-11: no recipe fits the remaining budget")
	assert.Contains(t, text, "Wed 2025-03-12: Red Lentil Dal [new] (onepot)")
	assert.Contains(t, text, "relaxed: nutrition")
}

func TestDayLabel(t *testing.T) {
	assert.Equal(t, "Day 3", DayLabel(planner.PlanItem{DayIndex: 2}))
	assert.Equal(t, "Sun 2025-03-16", DayLabel(planner.PlanItem{DayIndex: 6, Date: "2025-03-16"}))
}

func TestRecipeMarkdown(t *testing.T) {
	md := RecipeMarkdown(samplePlan().Recipes[0])
	assert.True(t, strings.HasPrefix(md, "# Turkey Chili\n"))
	assert.Contains(t, md, "_40 min, stovetop_")
	assert.Contains(t, md, "- 1 lb ground turkey")
	assert.Contains(t, md, "## Steps\n1. Brown the turkey.")

	bare := RecipeMarkdown(recipe.Recipe{ID: "x", Name: "Toast"})
	assert.Contains(t, bare, "2. Cook using the listed method.")
	assert.NotContains(t, bare, "## Ingredients")
}

func TestExporter_Export(t *testing.T) {
	ctx := context.Background()

	t.Run("WritesEveryFile", func(t *testing.T) {
		dir := t.TempDir()
		gen := &mockTextGenerator{response: "1. Rinse lentils.\n2. Simmer 20 minutes."}
		sink := &metaSink{}
		plan := samplePlan()
		items := shopping.Aggregate(plan.Recipes)

		res, err := NewExporter(dir, NewInstructionWriter(gen, sink), nil).Export(ctx, plan, items)
		require.NoError(t, err)

		assert.Equal(t, 1, gen.calls, "only the recipe without steps goes to the LLM")
		require.Len(t, res.Instructed, 1)
		assert.Equal(t, "gen-dal", res.Instructed[0].ID)
		assert.Equal(t, "1. Rinse lentils.\n2. Simmer 20 minutes.", plan.Recipes[1].Instructions)
		require.Len(t, sink.metas, 1)
		assert.Equal(t, shared.AgentInstructionWriter, sink.metas[0].AgentName)

		planText, err := os.ReadFile(filepath.Join(dir, PlanFile))
		require.NoError(t, err)
		assert.Contains(t, string(planText), "Turkey Chili")

		f, err := os.Open(filepath.Join(dir, ShoppingFile))
		require.NoError(t, err)
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			{"item", "qty"},
			{"beans", "2"},
			{"ground turkey", "1 lb"},
			{"red lentils", "1 cup"},
		}, rows)

		for _, id := range []string{"chili", "gen-dal"} {
			_, err := os.Stat(filepath.Join(dir, RecipesDir, id+".md"))
			assert.NoError(t, err, id)
		}

		cookbook, err := os.ReadFile(res.Cookbook)
		require.NoError(t, err)
		assert.Contains(t, string(cookbook), "# Turkey Chili")
		assert.Contains(t, string(cookbook), "\n---\n")
		assert.Contains(t, string(cookbook), "Rinse lentils")
	})

	t.Run("ScaffoldWhenWriterFails", func(t *testing.T) {
		dir := t.TempDir()
		gen := &mockTextGenerator{err: errors.New("quota exceeded")}
		plan := samplePlan()

		res, err := NewExporter(dir, NewInstructionWriter(gen, nil), nil).Export(ctx, plan, nil)
		require.NoError(t, err)
		assert.Empty(t, res.Instructed)
		assert.Equal(t, "1. Prep ingredients.\n2. Cook using onepot.\n3. Season to taste.", plan.Recipes[1].Instructions)
	})

	t.Run("NoWriter", func(t *testing.T) {
		plan := samplePlan()
		res, err := NewExporter(t.TempDir(), nil, nil).Export(ctx, plan, nil)
		require.NoError(t, err)
		assert.Empty(t, res.Instructed)

		rows, err := os.ReadFile(res.ListPath)
		require.NoError(t, err)
		assert.Equal(t, "item,qty\n", string(rows))
	})
}
