package shopping

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Repository handles persistence of shopping lists.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new shopping list repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// Save stores the list of a plan, replacing any previous one.
func (r *Repository) Save(ctx context.Context, list *List) error {
	itemsJSON, err := json.Marshal(list.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal shopping list items: %w", err)
	}
	if list.UpdatedAt.IsZero() {
		list.UpdatedAt = time.Now().UTC()
	}

	query, args, err := sq.Insert("shopping_lists").
		Columns("plan_id", "data", "updated_at").
		Values(list.PlanID, string(itemsJSON), list.UpdatedAt.Unix()).
		Suffix("ON CONFLICT(plan_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build shopping list upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save shopping list for plan %s: %w", list.PlanID, err)
	}
	return nil
}

// GetByPlanID retrieves the shopping list of a plan.
func (r *Repository) GetByPlanID(ctx context.Context, planID string) (*List, error) {
	query, args, err := sq.Select("data", "updated_at").
		From("shopping_lists").
		Where(sq.Eq{"plan_id": planID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build shopping list query: %w", err)
	}

	var (
		data      string
		updatedAt int64
	)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&data, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No shopping list found
		}
		return nil, fmt.Errorf("failed to get shopping list by plan ID: %w", err)
	}

	var items []Item
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shopping list items: %w", err)
	}
	return &List{PlanID: planID, Items: items, UpdatedAt: time.Unix(updatedAt, 0).UTC()}, nil
}

// DeleteByPlanID deletes the shopping list of a plan.
func (r *Repository) DeleteByPlanID(ctx context.Context, planID string) error {
	query, args, err := sq.Delete("shopping_lists").Where(sq.Eq{"plan_id": planID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build shopping list delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete shopping list: %w", err)
	}
	return nil
}
