package preference

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const dateLayout = "2006-01-02"

// Repository persists ratings in SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Add stores a rating. A second rating of the same recipe on the same day
// replaces the first.
func (r *Repository) Add(ctx context.Context, rating Rating) error {
	if err := rating.Validate(); err != nil {
		return err
	}
	if rating.RatedAt.IsZero() {
		rating.RatedAt = time.Now()
	}

	query, args, err := sq.Insert("ratings").
		Columns("recipe_id", "score", "cooked_on", "rated_at", "comments").
		Values(rating.RecipeID, rating.Score, rating.RatedAt.UTC().Format(dateLayout), rating.RatedAt.Unix(), rating.Comments).
		Suffix(`ON CONFLICT(recipe_id, cooked_on) DO UPDATE SET
			score = excluded.score,
			rated_at = excluded.rated_at,
			comments = excluded.comments`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build rating insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save rating for %s: %w", rating.RecipeID, err)
	}
	return nil
}

// ListByRecipe returns every rating grouped by recipe id, newest first.
func (r *Repository) ListByRecipe(ctx context.Context) (map[string][]Rating, error) {
	query, args, err := sq.Select("recipe_id", "score", "rated_at", "comments").
		From("ratings").
		OrderBy("recipe_id", "rated_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build ratings query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Rating)
	for rows.Next() {
		var (
			rating  Rating
			ratedAt int64
		)
		if err := rows.Scan(&rating.RecipeID, &rating.Score, &ratedAt, &rating.Comments); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		rating.RatedAt = time.Unix(ratedAt, 0).UTC()
		out[rating.RecipeID] = append(out[rating.RecipeID], rating)
	}
	return out, rows.Err()
}

// RecentLowRated returns the ids of recipes rated at or below maxScore since
// the given time.
func (r *Repository) RecentLowRated(ctx context.Context, since time.Time, maxScore int) ([]string, error) {
	query, args, err := sq.Select("DISTINCT recipe_id").
		From("ratings").
		Where(sq.And{
			sq.GtOrEq{"rated_at": since.Unix()},
			sq.LtOrEq{"score": maxScore},
		}).
		OrderBy("recipe_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build low-rated query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list low-rated recipes: %w", err)
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
