// Package shared holds the LLM bookkeeping types passed between the
// generators, the extractors and the metrics store.
package shared

import "time"

// Agent names recorded in execution metrics.
const (
	AgentGenerator         = "Generator"
	AgentExtractor         = "Extractor"
	AgentInstructionWriter = "InstructionWriter"
)

// TokenUsage tracks the tokens consumed by a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Empty reports whether no request was made.
func (u TokenUsage) Empty() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// AgentMeta holds operational metadata for one LLM call.
type AgentMeta struct {
	AgentName string
	Usage     TokenUsage
	Latency   time.Duration
}

// NewAgentMeta stamps the latency of a call that began at start.
func NewAgentMeta(agent string, usage TokenUsage, start time.Time) AgentMeta {
	return AgentMeta{AgentName: agent, Usage: usage, Latency: time.Since(start)}
}
