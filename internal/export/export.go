// Package export writes a plan to disk: an overview, the shopping list and a
// recipe booklet.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/neej1979/mealplanner/internal/logging"
	"github.com/neej1979/mealplanner/internal/planner"
	"github.com/neej1979/mealplanner/internal/recipe"
	"github.com/neej1979/mealplanner/internal/shopping"
)

// File names inside the output directory.
const (
	PlanFile     = "mealplan.txt"
	ShoppingFile = "shopping_list.csv"
	RecipesDir   = "recipes"
	CookbookFile = "COOKBOOK.md"
)

// StepsWriter writes cooking steps for a recipe.
type StepsWriter interface {
	Write(ctx context.Context, r recipe.Recipe) (string, error)
}

// Result lists what an export produced.
type Result struct {
	Dir        string
	PlanPath   string
	ListPath   string
	Cookbook   string
	Instructed []recipe.Recipe // recipes whose steps were written during the export
}

// Exporter writes plans to a directory.
type Exporter struct {
	dir    string
	writer StepsWriter
	logger *zap.Logger
}

// NewExporter creates an Exporter. writer and logger may be nil; without a
// writer missing steps fall back to ScaffoldSteps.
func NewExporter(dir string, writer StepsWriter, logger *zap.Logger) *Exporter {
	return &Exporter{dir: dir, writer: writer, logger: logging.OrNop(logger)}
}

// Export writes every file of the plan. plan.Recipes is updated in place
// with any steps written along the way.
func (e *Exporter) Export(ctx context.Context, plan *planner.Plan, items []shopping.Item) (*Result, error) {
	recipesDir := filepath.Join(e.dir, RecipesDir)
	if err := os.MkdirAll(recipesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	res := &Result{
		Dir:      e.dir,
		PlanPath: filepath.Join(e.dir, PlanFile),
		ListPath: filepath.Join(e.dir, ShoppingFile),
		Cookbook: filepath.Join(recipesDir, CookbookFile),
	}

	if err := os.WriteFile(res.PlanPath, []byte(PlanText(plan)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", PlanFile, err)
	}
	if err := writeShoppingList(res.ListPath, items); err != nil {
		return nil, err
	}

	parts := make([]string, 0, len(plan.Recipes))
	for i := range plan.Recipes {
		r := &plan.Recipes[i]
		if strings.TrimSpace(r.Instructions) == "" {
			steps, written := e.steps(ctx, *r)
			r.Instructions = steps
			if written {
				res.Instructed = append(res.Instructed, *r)
			}
		}
		md := RecipeMarkdown(*r)
		path := filepath.Join(recipesDir, recipe.Slugify(r.ID)+".md")
		if err := os.WriteFile(path, []byte(md), 0644); err != nil {
			return nil, fmt.Errorf("failed to write recipe %s: %w", r.ID, err)
		}
		parts = append(parts, strings.TrimSpace(md)+"\n")
	}

	if err := os.WriteFile(res.Cookbook, []byte(strings.Join(parts, "\n\n---\n\n")), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", CookbookFile, err)
	}

	e.logger.Info("plan exported",
		zap.String("plan_id", plan.ID),
		zap.String("dir", e.dir),
		zap.Int("recipes", len(plan.Recipes)),
		zap.Int("instructed", len(res.Instructed)))
	return res, nil
}

// steps reports false when it fell back to the scaffold.
func (e *Exporter) steps(ctx context.Context, r recipe.Recipe) (string, bool) {
	if e.writer == nil {
		return ScaffoldSteps(r), false
	}
	steps, err := e.writer.Write(ctx, r)
	if err != nil {
		e.logger.Warn("instruction writer failed, using scaffold", zap.String("recipe_id", r.ID), zap.Error(err))
		return ScaffoldSteps(r), false
	}
	return steps, true
}

func writeShoppingList(path string, items []shopping.Item) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", ShoppingFile, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"item", "qty"}); err != nil {
		return fmt.Errorf("failed to write shopping list: %w", err)
	}
	for _, it := range items {
		if err := w.Write([]string{it.Name, it.Qty}); err != nil {
			return fmt.Errorf("failed to write shopping list: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write shopping list: %w", err)
	}
	return f.Close()
}
