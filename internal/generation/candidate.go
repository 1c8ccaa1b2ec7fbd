package generation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/neej1979/mealplanner/internal/recipe"
)

// Candidate is an unvalidated recipe proposal as returned by a collaborator.
// Pointer fields distinguish a missing value from an explicit zero.
type Candidate struct {
	ID           string                `json:"id"`
	Name         string                `json:"name" validate:"required"`
	Cost         *float64              `json:"cost" validate:"required,gte=0"`
	Macros       CandidateMacros       `json:"macros"`
	Instructions string                `json:"instructions" validate:"required"`
	Method       string                `json:"method"`
	Minutes      int                   `json:"minutes" validate:"gte=0"`
	Tags         []string              `json:"tags"`
	Ingredients  []CandidateIngredient `json:"ingredients" validate:"dive"`
}

// CandidateMacros are the per serving nutrition facts of a candidate.
type CandidateMacros struct {
	ProteinG *float64 `json:"protein_g" validate:"required,gte=0"`
	FiberG   *float64 `json:"fiber_g" validate:"required,gte=0"`
	Kcals    *float64 `json:"kcals" validate:"omitempty,gte=0"`
}

// CandidateIngredient is one ingredient line of a candidate.
type CandidateIngredient struct {
	Item string       `json:"item" validate:"required"`
	Qty  flexibleText `json:"qty"`
}

// flexibleText accepts both JSON strings and numbers; models emit either for
// quantities.
type flexibleText string

func (f *flexibleText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleText(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	*f = flexibleText(data)
	return nil
}

// normalize trims free text fields so whitespace-only values fail validation.
func (c *Candidate) normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	c.Instructions = strings.TrimSpace(c.Instructions)
	c.Method = strings.ToLower(strings.TrimSpace(c.Method))
	for i := range c.Ingredients {
		c.Ingredients[i].Item = strings.TrimSpace(c.Ingredients[i].Item)
	}
}

// toRecipe converts a validated candidate. The id is always a slug.
func (c Candidate) toRecipe() recipe.Recipe {
	id := c.ID
	if id == "" {
		id = c.Name
	}
	r := recipe.Recipe{
		ID:           recipe.Slugify(id),
		Name:         c.Name,
		Cost:         *c.Cost,
		Instructions: c.Instructions,
		Origin:       recipe.OriginGenerated,
		Method:       c.Method,
		Minutes:      c.Minutes,
		Tags:         append([]string(nil), c.Tags...),
		Macros: recipe.Macros{
			ProteinG: *c.Macros.ProteinG,
			FiberG:   *c.Macros.FiberG,
		},
	}
	if c.Macros.Kcals != nil {
		r.Macros.Kcals = *c.Macros.Kcals
	}
	for _, ing := range c.Ingredients {
		r.Ingredients = append(r.Ingredients, recipe.Ingredient{Item: ing.Item, Qty: strings.TrimSpace(string(ing.Qty))})
	}
	return r
}
