// Package preference turns raw dish ratings into per-recipe selection
// weights.
package preference

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidScore is returned for ratings outside 1..5.
var ErrInvalidScore = errors.New("rating score must be between 1 and 5")

// Rating is one household rating of a cooked dish.
type Rating struct {
	RecipeID string
	Score    int
	RatedAt  time.Time
	Comments string
}

// Validate checks the score range and the recipe id.
func (r Rating) Validate() error {
	if r.RecipeID == "" {
		return fmt.Errorf("rating has no recipe id")
	}
	if r.Score < 1 || r.Score > 5 {
		return fmt.Errorf("%w: got %d", ErrInvalidScore, r.Score)
	}
	return nil
}

// Config tunes the weight curve.
type Config struct {
	// LowRatingThreshold is the decayed average below which a recipe is
	// penalized.
	LowRatingThreshold float64
	// HalfLife is the age at which a rating counts half as much.
	HalfLife time.Duration
	// RecentK limits the history to the K most recent ratings.
	RecentK int
	// MinWeight is the strictly positive floor of every weight.
	MinWeight float64
	// Steepness controls how fast the weight falls with the gap below the
	// threshold.
	Steepness float64
}

// DefaultConfig returns the tunables used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LowRatingThreshold: 2.5,
		HalfLife:           28 * 24 * time.Hour,
		RecentK:            5,
		MinWeight:          1e-4,
		Steepness:          4,
	}
}

// Model computes selection weights in (0, 1] from ratings.
type Model struct {
	cfg Config
	now func() time.Time
}

// NewModel creates a Model. A nil clock defaults to time.Now.
func NewModel(cfg Config, clock func() time.Time) *Model {
	def := DefaultConfig()
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = def.HalfLife
	}
	if cfg.RecentK < 1 {
		cfg.RecentK = def.RecentK
	}
	if cfg.MinWeight <= 0 || cfg.MinWeight > 1 {
		cfg.MinWeight = def.MinWeight
	}
	if cfg.Steepness <= 0 {
		cfg.Steepness = def.Steepness
	}
	if clock == nil {
		clock = time.Now
	}
	return &Model{cfg: cfg, now: clock}
}

// Weight returns the weight of recipeID given its ratings. Ratings for other
// recipes and out-of-range scores are ignored; no usable rating yields 1.
func (m *Model) Weight(recipeID string, ratings []Rating) float64 {
	return m.weightAt(m.now(), recipeID, ratings)
}

// Compute evaluates every recipe once against a single reference time.
func (m *Model) Compute(byRecipe map[string][]Rating) Weights {
	now := m.now()
	w := make(Weights, len(byRecipe))
	for id, ratings := range byRecipe {
		w[id] = m.weightAt(now, id, ratings)
	}
	return w
}

// DecayedAverage returns the recency-weighted mean score of the K most
// recent ratings and how many ratings it used.
func (m *Model) DecayedAverage(recipeID string, ratings []Rating) (float64, int) {
	return m.decayedAverage(m.now(), recipeID, ratings)
}

func (m *Model) weightAt(now time.Time, recipeID string, ratings []Rating) float64 {
	avg, n := m.decayedAverage(now, recipeID, ratings)
	if n == 0 || avg >= m.cfg.LowRatingThreshold {
		return 1.0
	}

	strength := 1.0
	if n == 1 {
		// A single bad night counts half.
		strength = 0.5
	}
	gap := m.cfg.LowRatingThreshold - avg
	w := math.Exp(-m.cfg.Steepness * gap * strength)
	return math.Min(1.0, math.Max(m.cfg.MinWeight, w))
}

func (m *Model) decayedAverage(now time.Time, recipeID string, ratings []Rating) (float64, int) {
	usable := make([]Rating, 0, len(ratings))
	for _, r := range ratings {
		if r.RecipeID == recipeID && r.Validate() == nil {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		return 0, 0
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].RatedAt.After(usable[j].RatedAt)
	})
	if len(usable) > m.cfg.RecentK {
		usable = usable[:m.cfg.RecentK]
	}

	halfLife := m.cfg.HalfLife.Hours()
	var sum, weights float64
	for _, r := range usable {
		age := now.Sub(r.RatedAt).Hours()
		if age < 0 {
			age = 0
		}
		d := math.Pow(0.5, age/halfLife)
		sum += d * float64(r.Score)
		weights += d
	}
	return sum / weights, len(usable)
}

// Weights is a read-only snapshot of recipe weights for one run.
type Weights map[string]float64

// For returns the weight of id, or 1 when id has no entry.
func (w Weights) For(id string) float64 {
	if v, ok := w[id]; ok {
		return v
	}
	return 1.0
}
