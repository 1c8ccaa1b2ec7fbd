package recipe

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/neej1979/mealplanner/internal/llm"
	"github.com/neej1979/mealplanner/internal/shared"
)

//go:embed extractor_prompt.md
var extractorPrompt string

var extractorTmpl = template.Must(template.New("extractor").Parse(extractorPrompt))

// Source is raw recipe content fetched from a blog post or a web page.
type Source struct {
	ID      string
	Title   string
	Content string
	URL     string
}

// Extractor turns unstructured recipe content into a Recipe with cost and
// macro estimates.
type Extractor struct {
	textGen llm.TextGenerator
}

// NewExtractor creates an Extractor backed by textGen.
func NewExtractor(textGen llm.TextGenerator) *Extractor {
	return &Extractor{textGen: textGen}
}

// Extract runs the LLM over src. The returned recipe is curated and carries
// src.ID, or a slug of its name when src.ID is empty.
func (e *Extractor) Extract(ctx context.Context, src Source) (Recipe, shared.AgentMeta, error) {
	start := time.Now()
	meta := shared.AgentMeta{AgentName: shared.AgentExtractor}

	var buf bytes.Buffer
	if err := extractorTmpl.Execute(&buf, src); err != nil {
		return Recipe{}, meta, fmt.Errorf("failed to build extractor prompt: %w", err)
	}

	resp, err := e.textGen.GenerateContent(ctx, buf.String())
	if err != nil {
		return Recipe{}, meta, fmt.Errorf("failed to get LLM response: %w", err)
	}
	meta = shared.NewAgentMeta(shared.AgentExtractor, resp.Usage, start)

	var rec Recipe
	if err := json.Unmarshal([]byte(llm.StripCodeFences(resp.Content)), &rec); err != nil {
		return Recipe{}, meta, fmt.Errorf("failed to unmarshal LLM response: %w", err)
	}

	if strings.TrimSpace(rec.Name) == "" {
		rec.Name = src.Title
	}
	rec.ID = src.ID
	if rec.ID == "" {
		rec.ID = Slugify(rec.Name)
	}
	rec.Origin = OriginCurated
	rec.SourceURL = src.URL

	if err := rec.Validate(); err != nil {
		return Recipe{}, meta, err
	}
	return rec, meta, nil
}
