package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/neej1979/mealplanner/internal/app"
	"github.com/neej1979/mealplanner/internal/config"
	"github.com/neej1979/mealplanner/internal/database"
	"github.com/neej1979/mealplanner/internal/export"
	"github.com/neej1979/mealplanner/internal/ghost"
	"github.com/neej1979/mealplanner/internal/llm"
	"github.com/neej1979/mealplanner/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	textGen, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize LLM client", zap.Error(err))
	}
	if c, ok := textGen.(llm.Closer); ok {
		defer c.Close()
	}

	db, err := database.NewDB(cfg.DatabasePath, database.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	var ghostClient ghost.Client
	if cfg.HasGhost() {
		ghostClient = ghost.NewClient(cfg)
	}

	application, err := app.NewApp(cfg, db, textGen, ghostClient, logger, nil)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "plan":
		err = runPlan(ctx, application, cfg, args)
	case "rate":
		err = runRate(ctx, application, args)
	case "history":
		err = runHistory(ctx, application, args)
	case "import-ghost":
		err = runImport(ctx, application)
	case "clip":
		err = runClip(ctx, application, args)
	case "publish":
		err = runPublish(ctx, application, args)
	case "status":
		err = runStatus(ctx, application)
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(args)

		var affected int64
		affected, err = application.CleanupMetrics(*days)
		if err == nil {
			fmt.Printf("Successfully removed %d old metric records.\n", affected)
		}
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal("command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func runPlan(ctx context.Context, a *app.App, cfg *config.Config, args []string) error {
	defaults := a.DefaultPlanOptions()
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	budget := fs.Float64("budget", defaults.Budget, "Weekly budget")
	days := fs.Int("days", defaults.Days, "Number of dinners to plan")
	servings := fs.Int("servings", defaults.Servings, "Servings per dinner")
	protein := fs.Float64("protein", defaults.ProteinFloor, "Protein floor per person per day, in grams")
	fiber := fs.Float64("fiber", defaults.FiberFloor, "Fiber floor per person per day, in grams")
	hint := fs.String("hint", "", "Free text hint for generated recipes")
	exclude := fs.String("exclude", "", "Comma separated recipe ids to skip")
	out := fs.String("out", cfg.OutputDir, "Directory for the exported files; empty disables the export")
	fs.Parse(args)

	opts := app.PlanOptions{
		Budget:       *budget,
		Days:         *days,
		Servings:     *servings,
		ProteinFloor: *protein,
		FiberFloor:   *fiber,
		Hint:         *hint,
		OutputDir:    *out,
	}
	for _, id := range strings.Split(*exclude, ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.Exclude = append(opts.Exclude, id)
		}
	}

	res, err := a.GenerateMealPlan(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Print(export.PlanText(res.Plan))
	if len(res.Excluded) > 0 {
		fmt.Printf("\nSkipped recently planned or disliked: %s\n", strings.Join(res.Excluded, ", "))
	}
	fmt.Println("\nShopping list:")
	for _, item := range res.Shopping {
		if item.Qty == "" {
			fmt.Printf("  - %s\n", item.Name)
			continue
		}
		fmt.Printf("  - %s: %s\n", item.Name, item.Qty)
	}
	if res.Export != nil {
		fmt.Printf("\nWrote %s, %s and %s\n", res.Export.PlanPath, res.Export.ListPath, res.Export.Cookbook)
	}
	fmt.Printf("\nPlan id: %s\n", res.Plan.ID)
	return nil
}

func runRate(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("rate", flag.ExitOnError)
	recipeID := fs.String("recipe", "", "Recipe id to rate")
	score := fs.Int("score", 0, "Rating from 1 to 5")
	comments := fs.String("comments", "", "Optional comments")
	fs.Parse(args)

	if *recipeID == "" {
		return fmt.Errorf("-recipe is required")
	}
	if err := a.Rate(ctx, *recipeID, *score, *comments); err != nil {
		return err
	}
	fmt.Printf("Rated %s: %d/5\n", *recipeID, *score)
	return nil
}

func runHistory(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	n := fs.Int("n", 5, "Number of plans to show")
	fs.Parse(args)

	plans, err := a.History(ctx, *n)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Println("No plans yet.")
		return nil
	}
	for i := range plans {
		fmt.Printf("== %s (%s) ==\n", plans[i].ID, plans[i].GeneratedAt.Format("2006-01-02 15:04"))
		fmt.Println(export.PlanText(&plans[i]))
	}
	return nil
}

func runImport(ctx context.Context, a *app.App) error {
	report, err := a.ImportFromGhost(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Fetched %d posts: %d imported, %d already known, %d failed.\n",
		report.Fetched, report.Imported, report.Skipped, report.Failed)
	return nil
}

func runClip(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mealplanner clip <url>")
	}
	rec, err := a.ClipURL(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s (%s): $%.2f, protein %.0f g, fiber %.0f g\n",
		rec.Name, rec.ID, rec.Cost, rec.Macros.ProteinG, rec.Macros.FiberG)
	return nil
}

func runPublish(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	planID := fs.String("plan", "", "Plan id; defaults to the most recent plan")
	fs.Parse(args)

	if *planID == "" {
		last, err := a.LastPlan(ctx)
		if err != nil {
			return err
		}
		if last == nil {
			return fmt.Errorf("no plan to publish")
		}
		*planID = last.ID
	}

	posts, err := a.PublishGenerated(ctx, *planID)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Println("The plan has no generated recipes.")
		return nil
	}
	for _, p := range posts {
		fmt.Printf("Draft created: %s (%s)\n", p.Title, p.ID)
	}
	return nil
}

func runStatus(ctx context.Context, a *app.App) error {
	s, err := a.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Recipes: %d\nLLM provider: %s\n", s.Recipes, s.Provider)
	for _, d := range s.Usage {
		fmt.Printf("  %s: %d tokens (%d execs)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution)
	}
	fmt.Printf("Memory: %dMB alloc, %dMB sys, %d goroutines\n", s.Health.AllocMB, s.Health.SysMB, s.Health.Goroutines)
	return nil
}

func printUsage() {
	fmt.Println("Usage: mealplanner <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  plan               Plan the coming week's dinners")
	fmt.Println("  rate               Rate a cooked recipe")
	fmt.Println("  history            Show recent plans")
	fmt.Println("  import-ghost       Fetch and extract recipes from Ghost")
	fmt.Println("  clip <url>         Import the recipe found at a URL")
	fmt.Println("  publish            Post a plan's generated recipes to Ghost as drafts")
	fmt.Println("  status             Show corpus size, LLM usage and memory")
	fmt.Println("  metrics-cleanup    Remove old metric records")
}
