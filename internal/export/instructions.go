package export

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/neej1979/mealplanner/internal/llm"
	"github.com/neej1979/mealplanner/internal/recipe"
	"github.com/neej1979/mealplanner/internal/shared"
)

//go:embed instructions_prompt.md
var instructionsPrompt string

var instructionsTmpl = template.Must(template.New("instructions").Parse(instructionsPrompt))

// MetaRecorder stores token usage of an LLM call.
type MetaRecorder interface {
	RecordMeta(meta shared.AgentMeta) error
}

// InstructionWriter fills in cooking steps for recipes that have none.
type InstructionWriter struct {
	textGen  llm.TextGenerator
	recorder MetaRecorder
}

// NewInstructionWriter creates an InstructionWriter. recorder may be nil.
func NewInstructionWriter(textGen llm.TextGenerator, recorder MetaRecorder) *InstructionWriter {
	return &InstructionWriter{textGen: textGen, recorder: recorder}
}

// Write asks the LLM for the steps of r.
func (w *InstructionWriter) Write(ctx context.Context, r recipe.Recipe) (string, error) {
	start := time.Now()

	var buf bytes.Buffer
	if err := instructionsTmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("failed to build instructions prompt: %w", err)
	}

	resp, err := w.textGen.GenerateContent(ctx, buf.String())
	if err != nil {
		return "", fmt.Errorf("failed to get LLM response: %w", err)
	}
	if w.recorder != nil {
		_ = w.recorder.RecordMeta(shared.NewAgentMeta(shared.AgentInstructionWriter, resp.Usage, start))
	}

	steps := strings.TrimSpace(llm.StripCodeFences(resp.Content))
	if steps == "" {
		return "", fmt.Errorf("empty instructions for %s", r.ID)
	}
	return steps, nil
}

// ScaffoldSteps is the generic method used when no instructions can be
// written.
func ScaffoldSteps(r recipe.Recipe) string {
	method := r.Method
	if method == "" {
		method = "the listed method"
	}
	return fmt.Sprintf("1. Prep ingredients.\n2. Cook using %s.\n3. Season to taste.", method)
}
