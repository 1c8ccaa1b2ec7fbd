package recipe

import "strings"

// Guardrails are hard filters that no relaxation step may lift.
type Guardrails struct {
	// BannedTokens are matched case-insensitively against name and tags.
	BannedTokens []string
	// MaxCost caps the per-serving cost. Zero disables the cap.
	MaxCost float64
}

// Allows reports whether r passes every guardrail.
func (g Guardrails) Allows(r Recipe) bool {
	if g.MaxCost > 0 && r.Cost > g.MaxCost {
		return false
	}
	if len(g.BannedTokens) == 0 {
		return true
	}
	haystack := strings.ToLower(r.Name + " " + strings.Join(r.Tags, " "))
	for _, tok := range g.BannedTokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" && strings.Contains(haystack, tok) {
			return false
		}
	}
	return true
}
