package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/neej1979/mealplanner/internal/planner"
	"github.com/neej1979/mealplanner/internal/recipe"
)

// DayLabel names a slot by weekday when the plan has dates.
func DayLabel(item planner.PlanItem) string {
	if d, err := time.Parse("2006-01-02", item.Date); err == nil {
		return d.Format("Mon 2006-01-02")
	}
	return fmt.Sprintf("Day %d", item.DayIndex+1)
}

// PlanText renders the plain text overview of a plan.
func PlanText(p *planner.Plan) string {
	var sb strings.Builder
	if !p.WeekStart.IsZero() {
		fmt.Fprintf(&sb, "Week of %s\n", p.WeekStart.Format("2006-01-02"))
	}
	fmt.Fprintf(&sb, "Estimated cost: $%.2f of $%.2f budget (%d serving(s) per dinner)\n", p.TotalCost, p.Budget, p.Servings)
	fmt.Fprintf(&sb, "Protein: %.0f g | Fiber: %.0f g per person over %d days\n", p.Macros.ProteinG, p.Macros.FiberG, p.Days)
	fmt.Fprintf(&sb, "Status: %s", p.Status)
	if len(p.Unfilled) > 0 {
		fmt.Fprintf(&sb, " (%d unfilled)", len(p.Unfilled))
	}
	if p.Degraded {
		sb.WriteString(" [generation unavailable]")
	}
	sb.WriteString("\n\n")

	for _, item := range p.Items {
		if !item.Filled() {
			fmt.Fprintf(&sb, "%s: no recipe fits the remaining budget\n", DayLabel(item))
			continue
		}
		label := "curated"
		if item.Origin == recipe.OriginGenerated {
			label = "new"
		}
		fmt.Fprintf(&sb, "%s: %s [%s]", DayLabel(item), item.RecipeName, label)
		if r, ok := p.Recipe(item.RecipeID); ok && (r.Minutes > 0 || r.Method != "") {
			fmt.Fprintf(&sb, " (%s)", strings.TrimSpace(minutesMethod(r)))
		}
		fmt.Fprintf(&sb, "  [Protein %.0f g | Fiber %.0f g | $%.2f]", item.Macros.ProteinG, item.Macros.FiberG, item.Cost)
		if len(item.Relaxed) > 0 {
			relaxed := make([]string, len(item.Relaxed))
			for i, r := range item.Relaxed {
				relaxed[i] = string(r)
			}
			fmt.Fprintf(&sb, " relaxed: %s", strings.Join(relaxed, ", "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func minutesMethod(r recipe.Recipe) string {
	switch {
	case r.Minutes > 0 && r.Method != "":
		return fmt.Sprintf("%d min, %s", r.Minutes, r.Method)
	case r.Minutes > 0:
		return fmt.Sprintf("%d min", r.Minutes)
	default:
		return r.Method
	}
}

// RecipeMarkdown renders one page of the recipe booklet.
func RecipeMarkdown(r recipe.Recipe) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", r.Name)
	if line := minutesMethod(r); line != "" {
		fmt.Fprintf(&sb, "_%s_  \n", line)
	}
	fmt.Fprintf(&sb, "_Protein_: %.0f g | _Fiber_: %.0f g | _Cost_: $%.2f per serving\n", r.Macros.ProteinG, r.Macros.FiberG, r.Cost)
	if r.SourceURL != "" {
		fmt.Fprintf(&sb, "\nSource: %s\n", r.SourceURL)
	}

	if len(r.Ingredients) > 0 {
		sb.WriteString("\n## Ingredients\n")
		for _, ing := range r.Ingredients {
			fmt.Fprintf(&sb, "- %s\n", strings.TrimSpace(ing.Qty+" "+ing.Item))
		}
	}

	sb.WriteString("\n## Steps\n")
	steps := strings.TrimSpace(r.Instructions)
	if steps == "" {
		steps = ScaffoldSteps(r)
	}
	sb.WriteString(steps)
	sb.WriteByte('\n')
	return sb.String()
}
