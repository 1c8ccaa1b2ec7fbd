package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/neej1979/mealplanner/internal/app"
	"github.com/neej1979/mealplanner/internal/export"
	"github.com/neej1979/mealplanner/internal/metrics"
	"github.com/neej1979/mealplanner/internal/planner"
	"github.com/neej1979/mealplanner/internal/recipe"
	"github.com/neej1979/mealplanner/internal/shopping"
)

const helpText = `🥘 *Meal Planner*

/plan [budget] [days] - plan the coming week
/rate - rate the dinners of the last plan
/rate <recipe-id> <1-5> [comments] - rate one recipe
/history [count] - recent plans
/clip <url> - import a recipe page
/status - corpus size, LLM usage and health

Send a link to clip it, or any other text to plan with it as a hint.`

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func formatPlan(p *planner.Plan) string {
	var sb strings.Builder
	if p.WeekStart.IsZero() {
		sb.WriteString("📅 *Meal Plan*\n\n")
	} else {
		fmt.Fprintf(&sb, "📅 *Meal Plan, week of %s*\n\n", p.WeekStart.Format("2006-01-02"))
	}

	for _, item := range p.Items {
		fmt.Fprintf(&sb, "*%s*: ", export.DayLabel(item))
		if !item.Filled() {
			sb.WriteString("_no recipe fits the remaining budget_\n")
			continue
		}
		fmt.Fprintf(&sb, "%s ($%.2f)", esc(item.RecipeName), item.Cost)
		if item.Origin == recipe.OriginGenerated {
			sb.WriteString(" 🆕")
		}
		sb.WriteByte('\n')
		if len(item.Relaxed) > 0 {
			relaxed := make([]string, len(item.Relaxed))
			for i, r := range item.Relaxed {
				relaxed[i] = strings.ReplaceAll(string(r), "_", " ")
			}
			fmt.Fprintf(&sb, "_relaxed: %s_\n", strings.Join(relaxed, ", "))
		}
	}

	fmt.Fprintf(&sb, "\n💰 *Total:* $%.2f of $%.2f\n", p.TotalCost, p.Budget)
	fmt.Fprintf(&sb, "🥩 Protein %.0f g | 🌾 Fiber %.0f g\n", p.Macros.ProteinG, p.Macros.FiberG)
	if len(p.Unfilled) > 0 {
		fmt.Fprintf(&sb, "⚠️ %d day(s) left unfilled\n", len(p.Unfilled))
	}
	if p.Degraded {
		sb.WriteString("_New recipe generation was unavailable._\n")
	}
	return sb.String()
}

func formatShopping(items []shopping.Item) string {
	var sb strings.Builder
	sb.WriteString("🛒 *Shopping List*\n\n")
	if len(items) == 0 {
		sb.WriteString("_Nothing to buy._\n")
		return sb.String()
	}
	for _, item := range items {
		if item.Qty == "" {
			fmt.Fprintf(&sb, "• %s\n", esc(item.Name))
			continue
		}
		fmt.Fprintf(&sb, "• %s (%s)\n", esc(item.Name), esc(item.Qty))
	}
	return sb.String()
}

func formatHistory(plans []planner.Plan) string {
	if len(plans) == 0 {
		return "No plans yet. Send /plan to create one."
	}
	var sb strings.Builder
	sb.WriteString("🗂 *Recent Plans*\n")
	for _, p := range plans {
		week := p.GeneratedAt.Format("2006-01-02")
		if !p.WeekStart.IsZero() {
			week = p.WeekStart.Format("2006-01-02")
		}
		fmt.Fprintf(&sb, "\n*%s* %s, $%.2f of $%.2f\n", week, p.Status, p.TotalCost, p.Budget)
		var names []string
		for _, item := range p.Items {
			if item.Filled() {
				names = append(names, esc(item.RecipeName))
			}
		}
		if len(names) > 0 {
			sb.WriteString(strings.Join(names, ", "))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func formatClipped(r *recipe.Recipe) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ *Recipe saved!*\n\n*%s* (`%s`)\n", esc(r.Name), r.ID)
	fmt.Fprintf(&sb, "$%.2f per serving | Protein %.0f g | Fiber %.0f g\n", r.Cost, r.Macros.ProteinG, r.Macros.FiberG)
	return sb.String()
}

func formatStatus(s *app.Status) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")
	fmt.Fprintf(&sb, "📚 Recipes: %d\n🤖 LLM: %s\n\n", s.Recipes, s.Provider)

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(s.Usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range s.Usage {
		fmt.Fprintf(&sb, "• *%s*: %d tokens (%d execs)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution)
	}

	sb.WriteString("\n🧠 *System Health*\n")
	fmt.Fprintf(&sb, "• RAM: %dMB (Alloc) / %dMB (Sys)\n", s.Health.AllocMB, s.Health.SysMB)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", s.Health.Goroutines)
	fmt.Fprintf(&sb, "• Disk Data: %s\n", metrics.HumanBytes(s.Health.DataBytes))
	return sb.String()
}

func errorText(title string, err error) string {
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	return fmt.Sprintf("❌ *%s:*\n```\n%s\n```", title, safeErr)
}

func stars(score int) string {
	if score < 0 {
		score = 0
	}
	return strings.Repeat("⭐", score)
}
