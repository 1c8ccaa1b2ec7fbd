package ghost

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/neej1979/mealplanner/internal/recipe"
)

var postTmpl = template.Must(template.New("post").Funcs(template.FuncMap{
	"steps": func(s string) []string {
		var out []string
		for _, line := range strings.Split(s, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	},
	"money": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
}).Parse(`<p><em>{{.Minutes}} min · {{.Method}} · {{money .Cost}} per serving</em></p>
<p><strong>Protein:</strong> {{.Macros.ProteinG}} g | <strong>Fiber:</strong> {{.Macros.FiberG}} g</p>
<h2>Ingredients</h2>
<ul>{{range .Ingredients}}<li>{{.Qty}} {{.Item}}</li>{{end}}</ul>
<h2>Instructions</h2>
{{range steps .Instructions}}<p>{{.}}</p>
{{end}}`))

// RecipeHTML renders a recipe as the body of a Ghost post.
func RecipeHTML(r recipe.Recipe) (string, error) {
	var buf bytes.Buffer
	if err := postTmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("failed to render recipe %s: %w", r.ID, err)
	}
	return buf.String(), nil
}
