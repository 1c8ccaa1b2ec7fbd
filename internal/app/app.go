// Package app wires the planning core to storage, the LLM and the outer
// integrations. The CLI and the Telegram bot both drive an *App.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/neej1979/mealplanner/internal/clipper"
	"github.com/neej1979/mealplanner/internal/config"
	"github.com/neej1979/mealplanner/internal/database"
	"github.com/neej1979/mealplanner/internal/export"
	"github.com/neej1979/mealplanner/internal/generation"
	"github.com/neej1979/mealplanner/internal/ghost"
	"github.com/neej1979/mealplanner/internal/llm"
	"github.com/neej1979/mealplanner/internal/logging"
	"github.com/neej1979/mealplanner/internal/metrics"
	"github.com/neej1979/mealplanner/internal/planner"
	"github.com/neej1979/mealplanner/internal/preference"
	"github.com/neej1979/mealplanner/internal/recipe"
	"github.com/neej1979/mealplanner/internal/shopping"
	"github.com/neej1979/mealplanner/internal/storage"
)

var (
	// ErrLLMDisabled is returned by operations that need a text generator
	// when the provider is "none".
	ErrLLMDisabled = errors.New("no LLM provider configured")
	// ErrGhostDisabled is returned by Ghost operations when Ghost is not
	// configured.
	ErrGhostDisabled = errors.New("ghost integration not configured")
	// ErrUnknownRecipe is returned when rating a recipe that does not exist.
	ErrUnknownRecipe = errors.New("unknown recipe")
)

// lowRatedMaxScore is the highest score the low-rated blocker treats as a dislike.
const lowRatedMaxScore = 2

// App holds the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
	clock  func() time.Time

	recipeRepo   *recipe.Repository
	ratingRepo   *preference.Repository
	planRepo     *planner.PlanRepository
	shoppingRepo *shopping.Repository
	recipeStore  *storage.RecipeStore
	metricsStore *metrics.Store
	prom         *metrics.Planner

	mealPlanner       *planner.Planner
	instructionWriter export.StepsWriter
	ghostClient       ghost.Client
	extractor         *recipe.Extractor
	recipeClipper     *clipper.Clipper

	// importDelay spaces out LLM calls during a Ghost import.
	importDelay time.Duration
}

// NewApp creates and initializes a new App instance. textGen and ghostClient
// may be nil; the features that need them then return ErrLLMDisabled or
// ErrGhostDisabled and planning runs in degraded mode.
func NewApp(
	cfg *config.Config,
	db *database.DB,
	textGen llm.TextGenerator,
	ghostClient ghost.Client,
	logger *zap.Logger,
	reg prometheus.Registerer,
) (*App, error) {
	logger = logging.OrNop(logger)

	recipeStore, err := storage.NewRecipeStore(cfg.RecipesDir)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		clock:        time.Now,
		recipeRepo:   recipe.NewRepository(db.SQL),
		ratingRepo:   preference.NewRepository(db.SQL),
		planRepo:     planner.NewPlanRepository(db.SQL),
		shoppingRepo: shopping.NewRepository(db.SQL),
		recipeStore:  recipeStore,
		metricsStore: metrics.NewStore(db.SQL),
		prom:         metrics.NewPlanner(reg),
		ghostClient:  ghostClient,
		importDelay:  5 * time.Second,
	}

	p := cfg.Planning
	guardrails := recipe.Guardrails{BannedTokens: p.BannedTokens, MaxCost: p.MaxMealCost}

	var collab generation.Collaborator
	if textGen != nil {
		collab = generation.NewLLMCollaborator(textGen, p.BannedTokens, a.metricsStore)
		a.instructionWriter = export.NewInstructionWriter(textGen, a.metricsStore)
		a.extractor = recipe.NewExtractor(textGen)
		a.recipeClipper = clipper.NewClipper(a.extractor)
	}

	fallback := generation.NewFallback(collab, generation.Config{
		Timeout:    p.GenerationTimeout,
		Count:      p.CandidatesPerRequest,
		Retry:      true,
		Guardrails: guardrails,
	}, generation.WithLogger(logger), generation.WithObserver(a.prom))

	selector := planner.NewSelector(planner.SelectorConfig{
		CostPenalty:      p.CostPenalty,
		VarietyBonus:     p.VarietyBonus,
		AllowRepeats:     p.AllowRepeats,
		RelaxBudgetFirst: p.RelaxBudgetFirst,
		Guardrails:       guardrails,
	}, fallback, planner.WithSelectorLogger(logger), planner.WithRelaxationObserver(a.prom))

	model := preference.NewModel(preference.Config{
		LowRatingThreshold: p.LowRatingThreshold,
		HalfLife:           p.DecayHalfLife,
		RecentK:            p.RecentRatings,
		MinWeight:          p.MinWeight,
		Steepness:          p.PenaltySteepness,
	}, a.now)

	a.mealPlanner = planner.NewPlanner(selector, planner.NewAssembler(planner.WithClock(a.now)), model, a.prom, logger)
	return a, nil
}

func (a *App) now() time.Time { return a.clock() }

// PlanOptions describes one planning request. Zero values fall back to the
// configured defaults where noted.
type PlanOptions struct {
	Budget       float64 // 0: planning.default_budget
	Days         int     // 0: planning.default_days
	Servings     int     // 0: planning.servings
	ProteinFloor float64
	FiberFloor   float64
	Hint         string
	WeekStart    time.Time // zero: next Monday
	Exclude      []string
	// OutputDir receives the exported files. Empty skips the export.
	OutputDir string
}

// DefaultPlanOptions returns the options a plain "plan" command uses.
func (a *App) DefaultPlanOptions() PlanOptions {
	p := a.cfg.Planning
	return PlanOptions{
		Budget:       p.DefaultBudget,
		Days:         p.DefaultDays,
		Servings:     p.Servings,
		ProteinFloor: p.ProteinFloor,
		FiberFloor:   p.FiberFloor,
	}
}

// PlanResult is what GenerateMealPlan produced.
type PlanResult struct {
	Plan     *planner.Plan
	Shopping []shopping.Item
	Excluded []string
	Export   *export.Result
}

// GenerateMealPlan syncs the curated seed files, builds the corpus, plans the
// week and persists the plan, its generated recipes and its shopping list.
func (a *App) GenerateMealPlan(ctx context.Context, opts PlanOptions) (*PlanResult, error) {
	req := a.planRequest(opts)

	if err := a.SyncSeeds(ctx); err != nil {
		return nil, err
	}

	recipes, err := a.recipeRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}
	corpus, err := recipe.NewCorpus(recipes)
	if err != nil {
		return nil, fmt.Errorf("failed to build corpus: %w", err)
	}

	excluded, err := a.exclusions(ctx, opts.Exclude)
	if err != nil {
		return nil, err
	}
	req.Exclude = excluded

	ratings, err := a.ratingRepo.ListByRecipe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}

	plan, err := a.mealPlanner.Plan(ctx, req, corpus, ratings)
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}

	for _, r := range plan.GeneratedRecipes() {
		if err := a.recipeRepo.Save(ctx, r); err != nil {
			a.logger.Warn("failed to save generated recipe", zap.String("recipe_id", r.ID), zap.Error(err))
		}
	}
	if err := a.planRepo.Save(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to save plan: %w", err)
	}

	items := shopping.Aggregate(chosenRecipes(plan))
	if err := a.shoppingRepo.Save(ctx, &shopping.List{PlanID: plan.ID, Items: items, UpdatedAt: a.now()}); err != nil {
		a.logger.Warn("failed to save shopping list", zap.String("plan_id", plan.ID), zap.Error(err))
	}

	res := &PlanResult{Plan: plan, Shopping: items, Excluded: excluded}
	if opts.OutputDir != "" {
		exp, err := export.NewExporter(opts.OutputDir, a.instructionWriter, a.logger).Export(ctx, plan, items)
		if err != nil {
			return nil, fmt.Errorf("failed to export plan: %w", err)
		}
		for _, r := range exp.Instructed {
			if err := a.recipeRepo.Save(ctx, r); err != nil {
				a.logger.Warn("failed to save written instructions", zap.String("recipe_id", r.ID), zap.Error(err))
			}
		}
		res.Export = exp
	}
	return res, nil
}

func (a *App) planRequest(opts PlanOptions) planner.PlanRequest {
	defaults := a.DefaultPlanOptions()
	if opts.Budget == 0 {
		opts.Budget = defaults.Budget
	}
	if opts.Days == 0 {
		opts.Days = defaults.Days
	}
	if opts.Servings == 0 {
		opts.Servings = defaults.Servings
	}
	if opts.WeekStart.IsZero() {
		opts.WeekStart = NextMonday(a.now())
	}
	return planner.PlanRequest{
		Days:         opts.Days,
		Budget:       opts.Budget,
		ProteinFloor: opts.ProteinFloor,
		FiberFloor:   opts.FiberFloor,
		Servings:     opts.Servings,
		Hint:         opts.Hint,
		WeekStart:    opts.WeekStart,
	}
}

// exclusions merges explicit exclusions with the no-repeat window and the
// optional low-rated blocker.
func (a *App) exclusions(ctx context.Context, explicit []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	add(explicit)

	p := a.cfg.Planning
	if p.NoRepeatWeeks > 0 {
		ids, err := a.planRepo.RecentRecipeIDs(ctx, a.now().AddDate(0, 0, -7*p.NoRepeatWeeks))
		if err != nil {
			return nil, fmt.Errorf("failed to load recent recipes: %w", err)
		}
		add(ids)
	}
	if p.BlockLowRatedWeeks > 0 {
		ids, err := a.ratingRepo.RecentLowRated(ctx, a.now().AddDate(0, 0, -7*p.BlockLowRatedWeeks), lowRatedMaxScore)
		if err != nil {
			return nil, fmt.Errorf("failed to load low rated recipes: %w", err)
		}
		add(ids)
	}
	return out, nil
}

// chosenRecipes lists the recipe of every filled slot in day order, so a
// repeated dinner is bought twice.
func chosenRecipes(plan *planner.Plan) []recipe.Recipe {
	var out []recipe.Recipe
	for _, item := range plan.Items {
		if !item.Filled() {
			continue
		}
		if r, ok := plan.Recipe(item.RecipeID); ok {
			out = append(out, r)
		}
	}
	return out
}

// SyncSeeds upserts the curated seed files into the recipe table. Steps
// written for a seed without instructions are kept.
func (a *App) SyncSeeds(ctx context.Context) error {
	seeds, err := a.recipeStore.ListAll()
	if err != nil {
		return fmt.Errorf("failed to load curated recipes: %w", err)
	}
	for _, r := range seeds {
		if r.Instructions == "" {
			existing, err := a.recipeRepo.Get(ctx, r.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				r.Instructions = existing.Instructions
			}
		}
		if err := a.recipeRepo.Save(ctx, r); err != nil {
			return fmt.Errorf("failed to sync curated recipe %s: %w", r.ID, err)
		}
	}
	if len(seeds) > 0 {
		a.logger.Debug("curated recipes synced", zap.Int("count", len(seeds)))
	}
	return nil
}

// Rate records a 1..5 rating for a recipe cooked today.
func (a *App) Rate(ctx context.Context, recipeID string, score int, comments string) error {
	rec, err := a.recipeRepo.Get(ctx, recipeID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRecipe, recipeID)
	}
	rating := preference.Rating{RecipeID: recipeID, Score: score, RatedAt: a.now(), Comments: comments}
	if err := a.ratingRepo.Add(ctx, rating); err != nil {
		return err
	}
	a.logger.Info("recipe rated", zap.String("recipe_id", recipeID), zap.Int("score", score))
	return nil
}

// LastPlan returns the most recent plan, or nil when none exists.
func (a *App) LastPlan(ctx context.Context) (*planner.Plan, error) {
	plans, err := a.planRepo.ListRecent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, nil
	}
	return &plans[0], nil
}

// History returns the most recent plans, newest first.
func (a *App) History(ctx context.Context, limit int) ([]planner.Plan, error) {
	if limit < 1 {
		limit = 5
	}
	return a.planRepo.ListRecent(ctx, limit)
}

// ShoppingList returns the stored list of a plan.
func (a *App) ShoppingList(ctx context.Context, planID string) (*shopping.List, error) {
	return a.shoppingRepo.GetByPlanID(ctx, planID)
}

// Status summarizes corpus size, recent LLM usage and process health.
type Status struct {
	Recipes  int
	Provider string
	Usage    []metrics.DailyUsage
	Health   metrics.Health
}

// Status collects the data behind the /status command.
func (a *App) Status(ctx context.Context) (*Status, error) {
	count, err := a.recipeRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := a.metricsStore.GetDailyUsage(7)
	if err != nil {
		return nil, err
	}
	return &Status{
		Recipes:  count,
		Provider: a.cfg.LLMProvider,
		Usage:    usage,
		Health:   metrics.CollectHealth(filepath.Dir(a.cfg.DatabasePath)),
	}, nil
}

// CleanupMetrics drops execution metrics older than days.
func (a *App) CleanupMetrics(days int) (int64, error) {
	n, err := a.metricsStore.Cleanup(days)
	if err != nil {
		return 0, err
	}
	a.logger.Info("execution metrics cleaned up", zap.Int64("deleted", n), zap.Int("older_than_days", days))
	return n, nil
}

// NextMonday returns the Monday after t, at midnight UTC. On a Monday it
// returns the following one.
func NextMonday(t time.Time) time.Time {
	t = t.UTC()
	days := (8 - int(t.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	d := t.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
