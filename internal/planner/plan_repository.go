package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/neej1979/mealplanner/internal/recipe"
)

// PlanRepository is a database-backed repository for meal plans.
type PlanRepository struct {
	db *sql.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(d *sql.DB) *PlanRepository {
	return &PlanRepository{db: d}
}

// Save stores a plan and its items in one transaction.
func (r *PlanRepository) Save(ctx context.Context, plan *Plan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := plan.GeneratedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	recipes := plan.Recipes
	if recipes == nil {
		recipes = []recipe.Recipe{}
	}
	recipesJSON, err := json.Marshal(recipes)
	if err != nil {
		return fmt.Errorf("failed to marshal plan recipes: %w", err)
	}

	query, args, err := sq.Insert("plans").
		Columns("id", "week_start", "days", "budget", "servings", "total_cost", "protein_g", "fiber_g",
			"status", "degraded", "recipes", "created_at").
		Values(plan.ID, plan.WeekStart.Format(dateLayout), plan.Days, plan.Budget, plan.Servings, plan.TotalCost,
			plan.Macros.ProteinG, plan.Macros.FiberG, string(plan.Status), plan.Degraded, string(recipesJSON),
			createdAt.Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build plan insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert plan %s: %w", plan.ID, err)
	}

	if len(plan.Items) > 0 {
		b := sq.Insert("plan_items").
			Columns("plan_id", "day_index", "recipe_id", "recipe_name", "origin", "cost",
				"protein_g", "fiber_g", "kcals", "status", "relaxed")
		for _, item := range plan.Items {
			relaxed := make([]string, len(item.Relaxed))
			for i, rl := range item.Relaxed {
				relaxed[i] = string(rl)
			}
			b = b.Values(plan.ID, item.DayIndex, item.RecipeID, item.RecipeName, string(item.Origin),
				item.Cost, item.Macros.ProteinG, item.Macros.FiberG, item.Macros.Kcals,
				string(item.Status), strings.Join(relaxed, ","))
		}
		query, args, err = b.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build plan items insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert plan items: %w", err)
		}
	}

	return tx.Commit()
}

// Get retrieves a plan with its items and the recipes it was built from.
func (r *PlanRepository) Get(ctx context.Context, id string) (*Plan, error) {
	plans, err := r.query(ctx, planSelect().Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, nil
	}
	return &plans[0], nil
}

// ListRecent retrieves the N most recent plans with their items.
func (r *PlanRepository) ListRecent(ctx context.Context, limit int) ([]Plan, error) {
	return r.query(ctx, planSelect().OrderBy("created_at DESC", "id").Limit(uint64(limit)))
}

// RecentRecipeIDs returns the distinct recipes planned since the given time.
func (r *PlanRepository) RecentRecipeIDs(ctx context.Context, since time.Time) ([]string, error) {
	query, args, err := sq.Select("DISTINCT pi.recipe_id").
		From("plan_items pi").
		Join("plans p ON p.id = pi.plan_id").
		Where(sq.And{
			sq.GtOrEq{"p.created_at": since.Unix()},
			sq.NotEq{"pi.recipe_id": ""},
		}).
		OrderBy("pi.recipe_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build recent recipes query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent recipe ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan recipe id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func planSelect() sq.SelectBuilder {
	return sq.Select("id", "week_start", "days", "budget", "servings", "total_cost", "protein_g", "fiber_g",
		"status", "degraded", "recipes", "created_at").
		From("plans")
}

func (r *PlanRepository) query(ctx context.Context, b sq.SelectBuilder) ([]Plan, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build plan query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var (
			p         Plan
			weekStart string
			status    string
			recipes   string
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &weekStart, &p.Days, &p.Budget, &p.Servings, &p.TotalCost,
			&p.Macros.ProteinG, &p.Macros.FiberG, &status, &p.Degraded, &recipes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		if err := json.Unmarshal([]byte(recipes), &p.Recipes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipes of plan %s: %w", p.ID, err)
		}
		p.Status = PlanStatus(status)
		p.GeneratedAt = time.Unix(createdAt, 0).UTC()
		if ws, err := time.Parse(dateLayout, weekStart); err == nil {
			p.WeekStart = ws
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range plans {
		items, err := r.items(ctx, plans[i].ID)
		if err != nil {
			return nil, err
		}
		plans[i].Items = items
		// Rows written before days was stored.
		if plans[i].Days == 0 {
			plans[i].Days = len(items)
		}
		for _, item := range items {
			if !item.Filled() {
				plans[i].Unfilled = append(plans[i].Unfilled, item.DayIndex)
			}
		}
	}
	return plans, nil
}

func (r *PlanRepository) items(ctx context.Context, planID string) ([]PlanItem, error) {
	query, args, err := sq.Select("day_index", "recipe_id", "recipe_name", "origin", "cost",
		"protein_g", "fiber_g", "kcals", "status", "relaxed").
		From("plan_items").
		Where(sq.Eq{"plan_id": planID}).
		OrderBy("day_index").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build plan items query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan items: %w", err)
	}
	defer rows.Close()

	var items []PlanItem
	for rows.Next() {
		var (
			item           PlanItem
			origin, status string
			relaxed        string
		)
		if err := rows.Scan(&item.DayIndex, &item.RecipeID, &item.RecipeName, &origin, &item.Cost,
			&item.Macros.ProteinG, &item.Macros.FiberG, &item.Macros.Kcals, &status, &relaxed); err != nil {
			return nil, fmt.Errorf("failed to scan plan item: %w", err)
		}
		item.Origin = recipe.Origin(origin)
		item.Status = SlotStatus(status)
		if relaxed != "" {
			for _, rl := range strings.Split(relaxed, ",") {
				item.Relaxed = append(item.Relaxed, Relaxation(rl))
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
