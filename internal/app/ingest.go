package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/neej1979/mealplanner/internal/ghost"
	"github.com/neej1979/mealplanner/internal/recipe"
)

// ImportReport counts the outcome of a Ghost import.
type ImportReport struct {
	Fetched  int
	Imported int
	Skipped  int
	Failed   int
}

// ImportFromGhost extracts every recipe post not yet in the database and
// saves it as a curated recipe. A post that fails extraction is logged and
// skipped.
func (a *App) ImportFromGhost(ctx context.Context) (*ImportReport, error) {
	if a.ghostClient == nil {
		return nil, ErrGhostDisabled
	}
	if a.extractor == nil {
		return nil, ErrLLMDisabled
	}

	posts, err := a.ghostClient.FetchRecipes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recipes from ghost: %w", err)
	}
	a.logger.Info("fetched recipe posts from ghost", zap.Int("count", len(posts)))

	report := &ImportReport{Fetched: len(posts)}
	calls := 0
	for _, post := range posts {
		src, err := post.Source()
		if err != nil {
			report.Failed++
			a.logger.Warn("failed to read post", zap.String("title", post.Title), zap.Error(err))
			continue
		}
		existing, err := a.recipeRepo.Get(ctx, src.ID)
		if err != nil {
			return report, err
		}
		if existing != nil {
			report.Skipped++
			continue
		}

		// Stay under free-tier rate limits.
		if calls > 0 && a.importDelay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(a.importDelay):
			}
		}
		calls++

		rec, meta, err := a.extractor.Extract(ctx, src)
		_ = a.metricsStore.RecordMeta(meta)
		if err != nil {
			report.Failed++
			a.logger.Warn("failed to extract recipe", zap.String("title", post.Title), zap.Error(err))
			continue
		}
		if err := a.recipeRepo.Save(ctx, rec); err != nil {
			report.Failed++
			a.logger.Warn("failed to save recipe", zap.String("recipe_id", rec.ID), zap.Error(err))
			continue
		}
		report.Imported++
		a.logger.Info("recipe imported", zap.String("recipe_id", rec.ID), zap.Float64("cost", rec.Cost))
	}
	return report, nil
}

// ClipURL imports the recipe found at url.
func (a *App) ClipURL(ctx context.Context, url string) (*recipe.Recipe, error) {
	if a.recipeClipper == nil {
		return nil, ErrLLMDisabled
	}
	rec, meta, err := a.recipeClipper.ClipURL(ctx, url)
	_ = a.metricsStore.RecordMeta(meta)
	if err != nil {
		return nil, err
	}
	if err := a.recipeRepo.Save(ctx, rec); err != nil {
		return nil, err
	}
	a.logger.Info("recipe clipped", zap.String("recipe_id", rec.ID), zap.String("url", url))
	return &rec, nil
}

// PublishGenerated posts the generated recipes of a plan to Ghost as drafts.
func (a *App) PublishGenerated(ctx context.Context, planID string) ([]ghost.Post, error) {
	if a.ghostClient == nil {
		return nil, ErrGhostDisabled
	}
	plan, err := a.planRepo.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("plan %s not found", planID)
	}

	var ids []string
	seen := make(map[string]bool)
	for _, item := range plan.Items {
		if item.Filled() && item.Origin == recipe.OriginGenerated && !seen[item.RecipeID] {
			seen[item.RecipeID] = true
			ids = append(ids, item.RecipeID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	recipes, err := a.recipeRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var posts []ghost.Post
	for _, r := range recipes {
		html, err := ghost.RecipeHTML(r)
		if err != nil {
			return posts, err
		}
		post, err := a.ghostClient.CreatePost(ctx, r.Name, html, false)
		if err != nil {
			return posts, fmt.Errorf("failed to publish %s: %w", r.ID, err)
		}
		posts = append(posts, *post)
		a.logger.Info("generated recipe published as draft", zap.String("recipe_id", r.ID), zap.String("post_id", post.ID))
	}
	return posts, nil
}
