package recipe

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ErrInvalidRecipe is returned when a recipe carries negative or non-finite
// cost or macros, or lacks an id.
var ErrInvalidRecipe = errors.New("invalid recipe")

// Origin tells curated recipes apart from the ones generated during a run.
type Origin string

const (
	OriginCurated   Origin = "curated"
	OriginGenerated Origin = "generated"
)

// Macros holds the nutrition facts of one serving.
type Macros struct {
	ProteinG float64 `json:"protein_g" yaml:"protein_g"`
	FiberG   float64 `json:"fiber_g" yaml:"fiber_g"`
	Kcals    float64 `json:"kcals" yaml:"kcals"`
}

// Add returns the sum of m and o.
func (m Macros) Add(o Macros) Macros {
	return Macros{
		ProteinG: m.ProteinG + o.ProteinG,
		FiberG:   m.FiberG + o.FiberG,
		Kcals:    m.Kcals + o.Kcals,
	}
}

// Scale multiplies every field by n.
func (m Macros) Scale(n float64) Macros {
	return Macros{ProteinG: m.ProteinG * n, FiberG: m.FiberG * n, Kcals: m.Kcals * n}
}

// Ingredient is one line of a shopping list. Qty is free text ("2", "1 can").
type Ingredient struct {
	Item string `json:"item" yaml:"item"`
	Qty  string `json:"qty" yaml:"qty"`
}

// Recipe represents a single dinner option.
type Recipe struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Cost         float64      `json:"cost" yaml:"cost"`
	Macros       Macros       `json:"macros" yaml:"macros"`
	Instructions string       `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Origin       Origin       `json:"origin" yaml:"origin"`
	Method       string       `json:"method,omitempty" yaml:"method,omitempty"`
	Minutes      int          `json:"minutes,omitempty" yaml:"minutes,omitempty"`
	Tags         []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	Ingredients  []Ingredient `json:"ingredients,omitempty" yaml:"ingredients,omitempty"`
	SourceURL    string       `json:"source_url,omitempty" yaml:"source_url,omitempty"`
}

// Validate checks the rules every stored or generated recipe must follow.
func (r Recipe) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("%w: empty id", ErrInvalidRecipe)
	case !NonNegative(r.Cost):
		return fmt.Errorf("%w: %s has cost %v, want a finite value >= 0", ErrInvalidRecipe, r.ID, r.Cost)
	case !NonNegative(r.Macros.ProteinG) || !NonNegative(r.Macros.FiberG) || !NonNegative(r.Macros.Kcals):
		return fmt.Errorf("%w: %s has negative or non-finite macros", ErrInvalidRecipe, r.ID)
	}
	return nil
}

// NonNegative reports whether v is finite and >= 0. NaN fails every
// comparison, so it is rejected along with the infinities.
func NonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// Clone returns a deep copy so callers can't alias slices of a corpus entry.
func (r Recipe) Clone() Recipe {
	c := r
	c.Tags = append([]string(nil), r.Tags...)
	c.Ingredients = append([]Ingredient(nil), r.Ingredients...)
	return c
}

// HasTag reports whether the recipe carries tag, ignoring case.
func (r Recipe) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

var proteinKeywords = []struct {
	group    string
	keywords []string
}{
	{"chicken", []string{"chicken", "turkey"}},
	{"beef", []string{"beef", "steak"}},
	{"pork", []string{"pork", "bacon", "ham", "sausage"}},
	{"fish", []string{"salmon", "cod", "tuna", "fish", "trout"}},
	{"legume", []string{"lentil", "bean", "chickpea", "tofu", "tempeh", "edamame"}},
	{"egg", []string{"egg"}},
}

// ProteinGroup guesses the main protein of a recipe from its name and
// ingredients. It returns "other" when nothing matches.
func ProteinGroup(r Recipe) string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(r.Name))
	for _, ing := range r.Ingredients {
		sb.WriteByte(' ')
		sb.WriteString(strings.ToLower(ing.Item))
	}
	text := sb.String()
	for _, pk := range proteinKeywords {
		for _, kw := range pk.keywords {
			if strings.Contains(text, kw) {
				return pk.group
			}
		}
	}
	return "other"
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 40

// Slugify turns a recipe name into a kebab-case id of at most 40 characters.
func Slugify(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "recipe"
	}
	return s
}
