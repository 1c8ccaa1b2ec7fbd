package preference

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refTime = time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return refTime }

func daysAgo(d int) time.Time { return refTime.Add(-time.Duration(d) * 24 * time.Hour) }

func TestModel_Weight(t *testing.T) {
	m := NewModel(DefaultConfig(), fixedClock)

	t.Run("NoRatings", func(t *testing.T) {
		assert.Equal(t, 1.0, m.Weight("chili", nil))
	})

	t.Run("HighRatings", func(t *testing.T) {
		ratings := []Rating{
			{RecipeID: "chili", Score: 5, RatedAt: daysAgo(1)},
			{RecipeID: "chili", Score: 4, RatedAt: daysAgo(8)},
		}
		assert.Equal(t, 1.0, m.Weight("chili", ratings))
	})

	t.Run("LowRatingsPenalized", func(t *testing.T) {
		ratings := []Rating{
			{RecipeID: "chili", Score: 1, RatedAt: daysAgo(1)},
			{RecipeID: "chili", Score: 2, RatedAt: daysAgo(8)},
		}
		w := m.Weight("chili", ratings)
		assert.Greater(t, w, 0.0)
		assert.Less(t, w, 0.1)
	})

	t.Run("NeverZero", func(t *testing.T) {
		harsh := NewModel(Config{LowRatingThreshold: 5, Steepness: 1000, MinWeight: 1e-4}, fixedClock)
		ratings := []Rating{
			{RecipeID: "chili", Score: 1, RatedAt: daysAgo(0)},
			{RecipeID: "chili", Score: 1, RatedAt: daysAgo(1)},
		}
		assert.Equal(t, 1e-4, harsh.Weight("chili", ratings))
	})

	t.Run("SingleRatingIsDampened", func(t *testing.T) {
		one := []Rating{{RecipeID: "chili", Score: 1, RatedAt: daysAgo(1)}}
		two := []Rating{
			{RecipeID: "chili", Score: 1, RatedAt: daysAgo(1)},
			{RecipeID: "chili", Score: 1, RatedAt: daysAgo(2)},
		}
		assert.Greater(t, m.Weight("chili", one), m.Weight("chili", two))
		assert.InDelta(t, math.Exp(-4*1.5*0.5), m.Weight("chili", one), 1e-9)
	})

	t.Run("RecentDominatesOld", func(t *testing.T) {
		recovering := []Rating{
			{RecipeID: "chili", Score: 1, RatedAt: daysAgo(120)},
			{RecipeID: "chili", Score: 3, RatedAt: daysAgo(1)},
		}
		declining := []Rating{
			{RecipeID: "chili", Score: 3, RatedAt: daysAgo(120)},
			{RecipeID: "chili", Score: 1, RatedAt: daysAgo(1)},
		}
		assert.Greater(t, m.Weight("chili", recovering), m.Weight("chili", declining))
		assert.Equal(t, 1.0, m.Weight("chili", recovering))
	})

	t.Run("OnlyRecentK", func(t *testing.T) {
		limited := NewModel(Config{LowRatingThreshold: 2.5, RecentK: 1}, fixedClock)
		ratings := []Rating{
			{RecipeID: "chili", Score: 1, RatedAt: daysAgo(3)},
			{RecipeID: "chili", Score: 5, RatedAt: daysAgo(1)},
		}
		avg, n := limited.DecayedAverage("chili", ratings)
		assert.Equal(t, 1, n)
		assert.Equal(t, 5.0, avg)
	})

	t.Run("IgnoresForeignAndInvalid", func(t *testing.T) {
		ratings := []Rating{
			{RecipeID: "salmon", Score: 1, RatedAt: daysAgo(1)},
			{RecipeID: "chili", Score: 0, RatedAt: daysAgo(1)},
			{RecipeID: "chili", Score: 9, RatedAt: daysAgo(1)},
		}
		assert.Equal(t, 1.0, m.Weight("chili", ratings))
	})

	t.Run("FutureTimestampsCountAsNow", func(t *testing.T) {
		ratings := []Rating{
			{RecipeID: "chili", Score: 1, RatedAt: refTime.Add(48 * time.Hour)},
			{RecipeID: "chili", Score: 5, RatedAt: refTime},
		}
		avg, n := m.DecayedAverage("chili", ratings)
		require.Equal(t, 2, n)
		assert.InDelta(t, 3.0, avg, 1e-9)
	})
}

func TestModel_Compute(t *testing.T) {
	m := NewModel(DefaultConfig(), fixedClock)
	w := m.Compute(map[string][]Rating{
		"chili":  {{RecipeID: "chili", Score: 1, RatedAt: daysAgo(1)}, {RecipeID: "chili", Score: 1, RatedAt: daysAgo(2)}},
		"salmon": {{RecipeID: "salmon", Score: 5, RatedAt: daysAgo(1)}},
	})

	assert.Less(t, w.For("chili"), 1.0)
	assert.Equal(t, 1.0, w.For("salmon"))
	assert.Equal(t, 1.0, w.For("never-rated"))

	for id, v := range w {
		assert.Greater(t, v, 0.0, id)
		assert.LessOrEqual(t, v, 1.0, id)
	}
}

func TestRating_Validate(t *testing.T) {
	assert.ErrorIs(t, Rating{RecipeID: "x", Score: 6}.Validate(), ErrInvalidScore)
	assert.ErrorIs(t, Rating{RecipeID: "x", Score: 0}.Validate(), ErrInvalidScore)
	assert.Error(t, Rating{Score: 3}.Validate())
	assert.NoError(t, Rating{RecipeID: "x", Score: 3}.Validate())
}
