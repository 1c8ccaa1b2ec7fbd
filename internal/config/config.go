package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const configPathEnv = "MEALPLANNER_CONFIG"

// LLM providers understood by the application.
const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
	ProviderNone   = "none"
)

// Config holds the configuration for the application.
type Config struct {
	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string
	GroqAPIKey   string
	GroqModel    string
	GroqBaseURL  string

	GhostURL        string
	GhostContentKey string
	GhostAdminKey   string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	ListenAddr             string

	DatabasePath string
	RecipesDir   string
	OutputDir    string

	LogLevel  string
	LogFormat string

	Planning PlanningConfig
}

// PlanningConfig carries every tunable of the planning engine.
type PlanningConfig struct {
	DefaultBudget float64
	DefaultDays   int
	ProteinFloor  float64
	FiberFloor    float64
	Servings      int

	LowRatingThreshold float64
	DecayHalfLife      time.Duration
	RecentRatings      int
	MinWeight          float64
	PenaltySteepness   float64

	CostPenalty      float64
	VarietyBonus     float64
	AllowRepeats     bool
	RelaxBudgetFirst bool

	GenerationTimeout    time.Duration
	CandidatesPerRequest int

	BannedTokens []string
	MaxMealCost  float64

	NoRepeatWeeks      int
	BlockLowRatedWeeks int
}

// NewFromEnv creates a new Config from defaults, an optional YAML file named
// by MEALPLANNER_CONFIG and environment variables, in increasing precedence.
func NewFromEnv() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MEALPLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range map[string]string{
		"gemini_api_key":            "GEMINI_API_KEY",
		"groq_api_key":              "GROQ_API_KEY",
		"ghost_api_url":             "GHOST_API_URL",
		"ghost_content_api_key":     "GHOST_CONTENT_API_KEY",
		"ghost_admin_api_key":       "GHOST_ADMIN_API_KEY",
		"telegram_bot_token":        "TELEGRAM_BOT_TOKEN",
		"telegram_webhook_url":      "TELEGRAM_WEBHOOK_URL",
		"telegram_allowed_user_ids": "TELEGRAM_ALLOWED_USER_IDS",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path := os.Getenv(configPathEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	allowed, err := parseUserIDs(v.GetString("telegram_allowed_user_ids"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LLMProvider:  strings.ToLower(v.GetString("llm.provider")),
		GeminiAPIKey: v.GetString("gemini_api_key"),
		GeminiModel:  v.GetString("llm.gemini_model"),
		GroqAPIKey:   v.GetString("groq_api_key"),
		GroqModel:    v.GetString("llm.groq_model"),
		GroqBaseURL:  v.GetString("llm.groq_base_url"),

		GhostURL:        v.GetString("ghost_api_url"),
		GhostContentKey: v.GetString("ghost_content_api_key"),
		GhostAdminKey:   v.GetString("ghost_admin_api_key"),

		TelegramBotToken:       v.GetString("telegram_bot_token"),
		TelegramWebhookURL:     v.GetString("telegram_webhook_url"),
		TelegramAllowedUserIDs: allowed,
		ListenAddr:             v.GetString("listen_addr"),

		DatabasePath: v.GetString("database_path"),
		RecipesDir:   v.GetString("recipes_dir"),
		OutputDir:    v.GetString("output_dir"),

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),

		Planning: PlanningConfig{
			DefaultBudget:        v.GetFloat64("planning.default_budget"),
			DefaultDays:          v.GetInt("planning.default_days"),
			ProteinFloor:         v.GetFloat64("planning.protein_floor"),
			FiberFloor:           v.GetFloat64("planning.fiber_floor"),
			Servings:             v.GetInt("planning.servings"),
			LowRatingThreshold:   v.GetFloat64("planning.low_rating_threshold"),
			DecayHalfLife:        v.GetDuration("planning.decay_half_life"),
			RecentRatings:        v.GetInt("planning.recent_ratings"),
			MinWeight:            v.GetFloat64("planning.min_weight"),
			PenaltySteepness:     v.GetFloat64("planning.penalty_steepness"),
			CostPenalty:          v.GetFloat64("planning.cost_penalty"),
			VarietyBonus:         v.GetFloat64("planning.variety_bonus"),
			AllowRepeats:         v.GetBool("planning.allow_repeats"),
			RelaxBudgetFirst:     v.GetBool("planning.relax_budget_first"),
			GenerationTimeout:    v.GetDuration("planning.generation_timeout"),
			CandidatesPerRequest: v.GetInt("planning.candidates_per_request"),
			BannedTokens:         stringList(v, "planning.banned_tokens"),
			MaxMealCost:          v.GetFloat64("planning.max_meal_cost"),
			NoRepeatWeeks:        v.GetInt("planning.no_repeat_weeks"),
			BlockLowRatedWeeks:   v.GetInt("planning.block_low_rated_weeks"),
		},
	}

	if cfg.GhostAdminKey == "" {
		// Fallback to content key if only one is provided
		cfg.GhostAdminKey = cfg.GhostContentKey
	}

	if err := cfg.resolveProvider(); err != nil {
		return nil, err
	}
	if err := cfg.Planning.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")
	v.SetDefault("llm.groq_model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.groq_base_url", "https://api.groq.com/openai/v1")

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_path", "data/mealplanner.db")
	v.SetDefault("recipes_dir", "data/recipes")
	v.SetDefault("output_dir", "out")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("planning.default_budget", 100.0)
	v.SetDefault("planning.default_days", 7)
	v.SetDefault("planning.protein_floor", 40.0)
	v.SetDefault("planning.fiber_floor", 6.0)
	v.SetDefault("planning.servings", 1)
	v.SetDefault("planning.low_rating_threshold", 2.5)
	v.SetDefault("planning.decay_half_life", 28*24*time.Hour)
	v.SetDefault("planning.recent_ratings", 5)
	v.SetDefault("planning.min_weight", 1e-4)
	v.SetDefault("planning.penalty_steepness", 4.0)
	v.SetDefault("planning.cost_penalty", 0.5)
	v.SetDefault("planning.variety_bonus", 0.15)
	v.SetDefault("planning.allow_repeats", true)
	v.SetDefault("planning.relax_budget_first", false)
	v.SetDefault("planning.generation_timeout", 30*time.Second)
	v.SetDefault("planning.candidates_per_request", 6)
	v.SetDefault("planning.banned_tokens", []string{"shellfish", "raw onion", "kale"})
	v.SetDefault("planning.max_meal_cost", 18.0)
	v.SetDefault("planning.no_repeat_weeks", 4)
	v.SetDefault("planning.block_low_rated_weeks", 0)
}

// resolveProvider picks the LLM provider. With no explicit choice the first
// provider that has a key wins, and "none" when no key is present.
func (c *Config) resolveProvider() error {
	switch c.LLMProvider {
	case "":
		switch {
		case c.GeminiAPIKey != "":
			c.LLMProvider = ProviderGemini
		case c.GroqAPIKey != "":
			c.LLMProvider = ProviderGroq
		default:
			c.LLMProvider = ProviderNone
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	case ProviderNone:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}
	return nil
}

// Validate rejects tunables the planning engine cannot work with.
func (p PlanningConfig) Validate() error {
	switch {
	case !(p.DefaultBudget > 0) || math.IsInf(p.DefaultBudget, 1):
		return fmt.Errorf("planning.default_budget must be finite and > 0")
	case p.DefaultDays < 1:
		return fmt.Errorf("planning.default_days must be >= 1")
	case !(p.ProteinFloor >= 0) || !(p.FiberFloor >= 0) || math.IsInf(p.ProteinFloor+p.FiberFloor, 1):
		return fmt.Errorf("planning nutrition floors must be finite and >= 0")
	case p.Servings < 1:
		return fmt.Errorf("planning.servings must be >= 1")
	case p.LowRatingThreshold < 1 || p.LowRatingThreshold > 5:
		return fmt.Errorf("planning.low_rating_threshold must be within 1..5")
	case p.DecayHalfLife <= 0:
		return fmt.Errorf("planning.decay_half_life must be > 0")
	case p.RecentRatings < 1:
		return fmt.Errorf("planning.recent_ratings must be >= 1")
	case p.MinWeight <= 0 || p.MinWeight > 1:
		return fmt.Errorf("planning.min_weight must be within (0, 1]")
	case p.GenerationTimeout <= 0:
		return fmt.Errorf("planning.generation_timeout must be > 0")
	case p.CandidatesPerRequest < 1:
		return fmt.Errorf("planning.candidates_per_request must be >= 1")
	}
	return nil
}

// HasGhost reports whether the Ghost integration is configured.
func (c *Config) HasGhost() bool {
	return c.GhostURL != "" && c.GhostContentKey != ""
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList([]string{raw}) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// stringList reads a list that may come from YAML as a sequence or from the
// environment as a comma separated string.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return splitList([]string{raw})
	}
	return splitList(v.GetStringSlice(key))
}

// splitList flattens comma separated entries coming from env variables.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
