// Package age implements Adaptive Goal Execution: the planner/DFS/pivot
// loop that drives a mission whose execution_mode is "adaptive" (spec §4.6).
package age

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// sideChannel issues a single non-streaming completion against an
// LLMProvider, for the planning and progress-classification calls that
// accompany a mission's sub-executions. Grounded on
// internal/agent/runtime.go's llmSummaryProvider, which uses the same
// drain-to-string pattern for its own side-channel summarization call.
func sideChannel(ctx context.Context, provider agent.LLMProvider, model, system, prompt string) (string, error) {
	req := &agent.CompletionRequest{
		Model:  model,
		System: system,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: 2048,
	}

	ch, err := provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range ch {
		if chunk == nil {
			continue
		}
		if chunk.ToolCall != nil {
			return "", fmt.Errorf("unexpected tool call during AGE side-channel call: %s", chunk.ToolCall.Name)
		}
		if chunk.Error != nil {
			return "", chunk.Error
		}
		if chunk.Done {
			break
		}
		if chunk.Text != "" {
			b.WriteString(chunk.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON pulls the content of the first ```json or ``` fenced code
// region out of raw model output (spec §4.6 step 1: "parses a JSON code
// block extracted from the first ```json or ``` fenced region"). If no
// fence is present, the whole trimmed string is returned on the assumption
// the model replied with bare JSON.
func extractJSON(raw string) string {
	if m := fencedBlockPattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}
