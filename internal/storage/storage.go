// Package storage reads and writes the curated recipe files that seed the
// corpus.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/neej1979/mealplanner/internal/recipe"
)

// RecipeStore provides file-based storage for curated recipes. A file holds
// either one recipe or a list of recipes, as YAML or JSON.
type RecipeStore struct {
	basePath string
}

// NewRecipeStore creates a new RecipeStore and ensures the base directory exists.
func NewRecipeStore(basePath string) (*RecipeStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &RecipeStore{basePath: basePath}, nil
}

func (s *RecipeStore) path(recipeID string) string {
	return filepath.Join(s.basePath, recipe.Slugify(recipeID)+".yaml")
}

// Save stores a recipe as <id>.yaml, replacing any previous version.
func (s *RecipeStore) Save(rec recipe.Recipe) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recipe: %w", err)
	}
	if err := os.WriteFile(s.path(rec.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write recipe file: %w", err)
	}
	return nil
}

// Load retrieves a recipe previously written by Save.
func (s *RecipeStore) Load(recipeID string) (*recipe.Recipe, error) {
	recipes, err := readFile(s.path(recipeID))
	if err != nil {
		return nil, err
	}
	for _, r := range recipes {
		if r.ID == recipeID {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("recipe %s not found in %s", recipeID, s.path(recipeID))
}

// Exists checks if a recipe file exists.
func (s *RecipeStore) Exists(recipeID string) bool {
	_, err := os.Stat(s.path(recipeID))
	return !errors.Is(err, os.ErrNotExist)
}

// ListAll reads every .yaml, .yml and .json file of the directory, sorted by
// file name. Recipes without an origin are curated. A malformed or invalid
// recipe fails the whole load.
func (s *RecipeStore) ListAll() ([]recipe.Recipe, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []recipe.Recipe
	for _, name := range names {
		recipes, err := readFile(filepath.Join(s.basePath, name))
		if err != nil {
			return nil, err
		}
		for _, r := range recipes {
			if r.Origin == "" {
				r.Origin = recipe.OriginCurated
			}
			if err := r.Validate(); err != nil {
				return nil, fmt.Errorf("invalid recipe in %s: %w", name, err)
			}
			all = append(all, r)
		}
	}
	return all, nil
}

// readFile decodes a YAML or JSON file holding a recipe or a list of them.
func readFile(path string) ([]recipe.Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode {
		var recipes []recipe.Recipe
		if err := root.Decode(&recipes); err != nil {
			return nil, fmt.Errorf("failed to decode recipes in %s: %w", filepath.Base(path), err)
		}
		return recipes, nil
	}

	var r recipe.Recipe
	if err := root.Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode recipe in %s: %w", filepath.Base(path), err)
	}
	return []recipe.Recipe{r}, nil
}
