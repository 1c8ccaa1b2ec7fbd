package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neej1979/mealplanner/internal/preference"
)

type planCounter struct {
	statuses []string
	unfilled int
}

func (p *planCounter) ObservePlan(status string, unfilled int, cost, budget float64) {
	p.statuses = append(p.statuses, status)
	p.unfilled += unfilled
}

func newTestPlanner(cfg SelectorConfig, obs PlanObserver) *Planner {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	return NewPlanner(
		NewSelector(cfg, nil),
		NewAssembler(WithClock(clock)),
		preference.NewModel(preference.DefaultConfig(), clock),
		obs,
		nil,
	)
}

func TestPlanner_Plan(t *testing.T) {
	ctx := context.Background()
	corpus := mustCorpus(t, mk("chili", 5, 45, 12), mk("salmon", 9, 42, 7), mk("dal", 4, 41, 14))

	t.Run("RatingsSteerSelection", func(t *testing.T) {
		obs := &planCounter{}
		p := newTestPlanner(DefaultSelectorConfig(), obs)
		now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		ratings := map[string][]preference.Rating{
			"dal": {
				{RecipeID: "dal", Score: 1, RatedAt: now.Add(-24 * time.Hour)},
				{RecipeID: "dal", Score: 1, RatedAt: now.Add(-48 * time.Hour)},
			},
		}

		plan, err := p.Plan(ctx, PlanRequest{Days: 2, Budget: 30, ProteinFloor: 40, FiberFloor: 6}, corpus, ratings)
		require.NoError(t, err)

		assert.Equal(t, StatusComplete, plan.Status)
		for _, item := range plan.Items {
			assert.NotEqual(t, "dal", item.RecipeID)
		}
		assert.Equal(t, []string{"COMPLETE"}, obs.statuses)
	})

	t.Run("PartialPlanObserved", func(t *testing.T) {
		obs := &planCounter{}
		cfg := DefaultSelectorConfig()
		cfg.AllowRepeats = false
		p := newTestPlanner(cfg, obs)

		plan, err := p.Plan(ctx, PlanRequest{Days: 5, Budget: 100}, corpus, nil)
		require.NoError(t, err)
		assert.Equal(t, StatusPartial, plan.Status)
		assert.Equal(t, []int{3, 4}, plan.Unfilled)
		assert.Equal(t, 2, obs.unfilled)
	})

	t.Run("EmptyCorpus", func(t *testing.T) {
		p := newTestPlanner(DefaultSelectorConfig(), nil)
		_, err := p.Plan(ctx, PlanRequest{Days: 7, Budget: 100}, mustCorpus(t), nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCorpusEmpty))
	})
}
