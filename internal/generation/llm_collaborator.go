package generation

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

//go:embed generator_prompt.md
var generatorPrompt string

var generatorTmpl = template.Must(template.New("generator").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(generatorPrompt))

// MetaRecorder stores token usage of an LLM call.
type MetaRecorder interface {
	RecordMeta(meta shared.AgentMeta) error
}

// LLMCollaborator proposes candidates through a text generator.
type LLMCollaborator struct {
	textGen  llm.TextGenerator
	banned   []string
	recorder MetaRecorder
}

// NewLLMCollaborator creates a collaborator. recorder may be nil.
func NewLLMCollaborator(textGen llm.TextGenerator, banned []string, recorder MetaRecorder) *LLMCollaborator {
	return &LLMCollaborator{textGen: textGen, banned: banned, recorder: recorder}
}

type promptData struct {
	Request
	Banned []string
}

// Propose implements Collaborator.
func (c *LLMCollaborator) Propose(ctx context.Context, req Request) ([]Candidate, error) {
	start := time.Now()

	var buf bytes.Buffer
	if err := generatorTmpl.Execute(&buf, promptData{Request: req, Banned: c.banned}); err != nil {
		return nil, fmt.Errorf("failed to build generator prompt: %w", err)
	}

	resp, err := c.textGen.GenerateContent(ctx, buf.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get LLM response: %w", err)
	}

	if c.recorder != nil {
		// Metrics are best effort.
		_ = c.recorder.RecordMeta(shared.NewAgentMeta(shared.AgentGenerator, resp.Usage, start))
	}

	var payload struct {
		Candidates []json.RawMessage `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(llm.StripCodeFences(resp.Content)), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM response: %w", err)
	}

	// A malformed entry only loses itself.
	candidates := make([]Candidate, 0, len(payload.Candidates))
	for _, raw := range payload.Candidates {
		var cand Candidate
		if err := json.Unmarshal(raw, &cand); err != nil {
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}
