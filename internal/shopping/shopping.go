// Package shopping turns the recipes of a plan into one merged shopping list.
package shopping

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/neej1979/mealplanner/internal/recipe"
)

// Item is one line of the list. Qty is either a summed number or the
// quantities joined with " + ".
type Item struct {
	Name string `json:"name"`
	Qty  string `json:"qty"`
}

// List represents the shopping list for a meal plan.
type List struct {
	PlanID    string    `json:"plan_id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entry struct {
	name    string
	qty     string
	sum     float64
	numeric bool
}

// Aggregate merges the ingredients of recipes, in the order given. A recipe
// listed twice contributes twice. Items match case-insensitively and the
// result is sorted by name.
func Aggregate(recipes []recipe.Recipe) []Item {
	entries := make(map[string]*entry)
	for _, r := range recipes {
		for _, ing := range r.Ingredients {
			name := strings.TrimSpace(ing.Item)
			if name == "" {
				continue
			}
			qty := strings.TrimSpace(ing.Qty)
			key := strings.ToLower(name)

			e, ok := entries[key]
			if !ok {
				e = &entry{name: name}
				entries[key] = e
				if v, err := strconv.ParseFloat(qty, 64); err == nil {
					e.sum, e.numeric = v, true
				} else {
					e.qty = qty
				}
				continue
			}
			e.merge(qty)
		}
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, Item{Name: e.name, Qty: e.String()})
	}
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items
}

func (e *entry) merge(qty string) {
	if qty == "" {
		return
	}
	v, err := strconv.ParseFloat(qty, 64)
	if err == nil && e.numeric {
		e.sum += v
		return
	}
	e.qty = joinQty(e.String(), qty)
	e.numeric = false
}

func (e *entry) String() string {
	if e.numeric {
		return strconv.FormatFloat(e.sum, 'f', -1, 64)
	}
	return e.qty
}

func joinQty(prev, next string) string {
	if prev == "" {
		return next
	}
	return prev + " + " + next
}
