// Package generation asks an external collaborator for new recipes when the
// curated corpus cannot fill a plan slot.
package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/neej1979/mealplanner/internal/logging"
	"github.com/neej1979/mealplanner/internal/recipe"
)

// Constraints describe the slot that needs new candidates. Nutrition floors
// and cost are per serving.
type Constraints struct {
	Day          int
	MaxCost      float64
	ProteinFloor float64
	FiberFloor   float64
	Exclude      []string
	Hint         string
}

// Request is what a collaborator receives.
type Request struct {
	Constraints
	Count int
}

// Collaborator proposes candidate recipes. Implementations must honor ctx.
type Collaborator interface {
	Propose(ctx context.Context, req Request) ([]Candidate, error)
}

// Observer receives generation outcomes, e.g. for Prometheus counters.
type Observer interface {
	ObserveGeneration(outcome string, rejected int)
}

// Outcomes reported to the Observer.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeEmpty       = "empty"
)

// Report summarizes one Generate call.
type Report struct {
	// Requests is the number of collaborator calls, at most two.
	Requests int
	// Received counts raw candidates across all calls.
	Received int
	// Rejected counts candidates dropped by validation, guardrails or
	// exclusions.
	Rejected int
	// Unavailable is set when no valid candidate came back.
	Unavailable bool
	Err         error
}

// Config tunes the fallback.
type Config struct {
	Timeout    time.Duration
	Count      int
	Retry      bool
	Guardrails recipe.Guardrails
}

// Fallback validates collaborator output and turns it into generated
// recipes.
type Fallback struct {
	collab   Collaborator
	cfg      Config
	validate *validator.Validate
	logger   *zap.Logger
	observer Observer
}

// Option configures a Fallback.
type Option func(*Fallback)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fallback) { f.logger = logging.OrNop(l) }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(f *Fallback) { f.observer = o }
}

// NewFallback creates a Fallback. A nil collaborator makes every call
// report Unavailable without blocking.
func NewFallback(collab Collaborator, cfg Config, opts ...Option) *Fallback {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Count < 1 {
		cfg.Count = 6
	}
	f := &Fallback{
		collab:   collab,
		cfg:      cfg,
		validate: validator.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Generate requests candidates for one slot. The whole call, retry included,
// is bounded by the configured timeout. It never returns an error: failures
// surface as an empty slice and Report.Unavailable.
func (f *Fallback) Generate(ctx context.Context, c Constraints) ([]recipe.Recipe, Report) {
	var report Report
	if f.collab == nil {
		report.Unavailable = true
		report.Err = errors.New("no generation collaborator configured")
		f.finish(c, &report)
		return nil, report
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	attempts := 1
	if f.cfg.Retry {
		attempts = 2
	}

	excluded := make(map[string]bool, len(c.Exclude))
	for _, id := range c.Exclude {
		excluded[strings.ToLower(id)] = true
	}

	var out []recipe.Recipe
	for i := 0; i < attempts && len(out) == 0; i++ {
		if ctx.Err() != nil {
			report.Err = ctx.Err()
			break
		}
		report.Requests++

		candidates, err := f.propose(ctx, Request{Constraints: c, Count: f.cfg.Count})
		if err != nil {
			report.Err = err
			f.logger.Debug("generation request failed", zap.Int("day", c.Day), zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		report.Received += len(candidates)
		out = f.accept(c.Day, candidates, excluded, &report)
	}

	if len(out) == 0 {
		report.Unavailable = true
	}
	f.finish(c, &report)
	return out, report
}

type proposal struct {
	candidates []Candidate
	err        error
}

// propose returns when the collaborator answers or ctx is done, whichever
// comes first. A collaborator that ignores ctx is left to finish on its own.
func (f *Fallback) propose(ctx context.Context, req Request) ([]Candidate, error) {
	done := make(chan proposal, 1)
	go func() {
		candidates, err := f.collab.Propose(ctx, req)
		done <- proposal{candidates, err}
	}()
	select {
	case p := <-done:
		return p.candidates, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Fallback) accept(day int, candidates []Candidate, excluded map[string]bool, report *Report) []recipe.Recipe {
	var out []recipe.Recipe
	for _, cand := range candidates {
		cand.normalize()
		if err := f.validate.Struct(cand); err != nil {
			report.Rejected++
			f.logger.Debug("discarding invalid candidate", zap.Int("day", day), zap.String("name", cand.Name), zap.Error(err))
			continue
		}
		r := cand.toRecipe()
		if err := r.Validate(); err != nil {
			report.Rejected++
			f.logger.Debug("discarding invalid candidate", zap.Int("day", day), zap.String("name", cand.Name), zap.Error(err))
			continue
		}
		if !f.cfg.Guardrails.Allows(r) {
			report.Rejected++
			f.logger.Debug("discarding candidate failing guardrails", zap.Int("day", day), zap.String("recipe_id", r.ID))
			continue
		}
		if excluded[r.ID] || excluded[strings.ToLower(r.Name)] {
			report.Rejected++
			f.logger.Debug("discarding excluded candidate", zap.Int("day", day), zap.String("recipe_id", r.ID))
			continue
		}
		out = append(out, r)
	}
	return out
}

func (f *Fallback) finish(c Constraints, report *Report) {
	outcome := OutcomeOK
	switch {
	case report.Unavailable && report.Received > 0:
		outcome = OutcomeEmpty
	case report.Unavailable:
		outcome = OutcomeUnavailable
	}
	if report.Unavailable {
		f.logger.Warn("generation unavailable, continuing with curated recipes only",
			zap.Int("day", c.Day),
			zap.Int("requests", report.Requests),
			zap.Int("rejected", report.Rejected),
			zap.Error(report.Err),
		)
	}
	if f.observer != nil {
		f.observer.ObserveGeneration(outcome, report.Rejected)
	}
}
