package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Repository is a database-backed repository for recipes.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// Save inserts or updates a recipe in the database.
func (r *Repository) Save(ctx context.Context, rec Recipe) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.Origin == "" {
		rec.Origin = OriginCurated
	}

	recipeJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recipe to JSON: %w", err)
	}

	query, args, err := sq.Insert("recipes").
		Columns("id", "name", "origin", "cost", "protein_g", "fiber_g", "data", "updated_at").
		Values(rec.ID, rec.Name, string(rec.Origin), rec.Cost, rec.Macros.ProteinG, rec.Macros.FiberG, string(recipeJSON), time.Now().Unix()).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			origin = excluded.origin,
			cost = excluded.cost,
			protein_g = excluded.protein_g,
			fiber_g = excluded.fiber_g,
			data = excluded.data,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build recipe upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save recipe %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves a recipe by its ID.
func (r *Repository) Get(ctx context.Context, id string) (*Recipe, error) {
	query, args, err := sq.Select("data").From("recipes").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build recipe query: %w", err)
	}

	var data string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Recipe not found
		}
		return nil, fmt.Errorf("failed to get recipe by ID: %w", err)
	}

	var rec Recipe
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipe JSON: %w", err)
	}
	return &rec, nil
}

// GetByIDs retrieves multiple recipes by their IDs. Unknown ids are skipped.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]Recipe, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, sq.Select("data").From("recipes").Where(sq.Eq{"id": ids}).OrderBy("id"))
}

// List retrieves all recipes, optionally excluding specified IDs.
func (r *Repository) List(ctx context.Context, excludeIDs []string) ([]Recipe, error) {
	b := sq.Select("data").From("recipes").OrderBy("id")
	if len(excludeIDs) > 0 {
		b = b.Where(sq.NotEq{"id": excludeIDs})
	}
	return r.list(ctx, b)
}

// Count returns the number of recipes in the database.
func (r *Repository) Count(ctx context.Context) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("recipes").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recipes: %w", err)
	}
	return count, nil
}

func (r *Repository) list(ctx context.Context, b sq.SelectBuilder) ([]Recipe, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build recipe query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []Recipe
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		var rec Recipe
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipe JSON: %w", err)
		}
		recipes = append(recipes, rec)
	}
	return recipes, rows.Err()
}
