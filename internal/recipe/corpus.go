package recipe

import (
	"fmt"
	"strconv"
)

// Corpus is an immutable, ordered view over the recipes known to a run.
// Augment never touches the receiver, so a corpus can be shared by
// concurrent runs.
type Corpus struct {
	recipes []Recipe
	index   map[string]int
}

// NewCorpus validates recipes and builds a corpus. Ids must be unique.
func NewCorpus(recipes []Recipe) (*Corpus, error) {
	c := &Corpus{
		recipes: make([]Recipe, 0, len(recipes)),
		index:   make(map[string]int, len(recipes)),
	}
	for _, r := range recipes {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.index[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidRecipe, r.ID)
		}
		if r.Origin == "" {
			r.Origin = OriginCurated
		}
		c.index[r.ID] = len(c.recipes)
		c.recipes = append(c.recipes, r.Clone())
	}
	return c, nil
}

// Len returns the number of recipes in the corpus.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.recipes)
}

// Snapshot returns a copy of every recipe in insertion order.
func (c *Corpus) Snapshot() []Recipe {
	if c == nil {
		return nil
	}
	out := make([]Recipe, len(c.recipes))
	for i, r := range c.recipes {
		out[i] = r.Clone()
	}
	return out
}

// Get returns the recipe with the given id.
func (c *Corpus) Get(id string) (Recipe, bool) {
	if c == nil {
		return Recipe{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Recipe{}, false
	}
	return c.recipes[i].Clone(), true
}

// Augment returns a new corpus holding the receiver's recipes followed by
// extra. An id that collides with an existing one gets a "-2", "-3"...
// suffix. Invalid recipes are skipped.
func (c *Corpus) Augment(extra []Recipe) *Corpus {
	n := c.Len()
	out := &Corpus{
		recipes: make([]Recipe, 0, n+len(extra)),
		index:   make(map[string]int, n+len(extra)),
	}
	if c != nil {
		for i, r := range c.recipes {
			out.recipes = append(out.recipes, r)
			out.index[r.ID] = i
		}
	}
	for _, r := range extra {
		if r.Validate() != nil {
			continue
		}
		r = r.Clone()
		r.ID = out.uniqueID(r.ID)
		out.index[r.ID] = len(out.recipes)
		out.recipes = append(out.recipes, r)
	}
	return out
}

// Added returns the recipes of c whose ids are not present in base, in
// insertion order.
func (c *Corpus) Added(base *Corpus) []Recipe {
	var out []Recipe
	for _, r := range c.Snapshot() {
		if _, ok := base.Get(r.ID); !ok {
			out = append(out, r)
		}
	}
	return out
}

func (c *Corpus) uniqueID(id string) string {
	if _, taken := c.index[id]; !taken {
		return id
	}
	for n := 2; ; n++ {
		candidate := id + "-" + strconv.Itoa(n)
		if _, taken := c.index[candidate]; !taken {
			return candidate
		}
	}
}
