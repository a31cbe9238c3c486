package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Named compaction strategies (spec §4.3).
const (
	StrategyCFPMMemoryV1  = "cfpm_memory_v1"
	StrategyLegacySegment = "legacy_segmented"

	// CompactionSummaryTag marks the synthesized summary message inserted
	// by cfpm_memory_v1 so later compaction passes can recognize and
	// re-summarize it rather than treating it as ordinary history.
	CompactionSummaryTag = "compaction_summary_v1"

	// TriggerRatio is the context-window fraction at which compaction
	// runs (spec §4.3: "triggers at >=80% of the context window").
	TriggerRatio = 0.8

	// FallbackRatio is the target fraction legacy_segmented prunes down
	// to when the side-channel summarization call fails (spec §4.3:
	// "drops oldest body turns until the estimate is below 60%").
	FallbackRatio = 0.6

	// RecentTurnsKept is the number of most-recent turns cfpm_memory_v1
	// keeps verbatim in the body (spec §4.3 step 2).
	RecentTurnsKept = 4
)

// Result reports the outcome of a compaction pass for event emission and
// session bookkeeping.
type Result struct {
	Strategy     string
	Messages     []*models.Message
	BeforeTokens int64
	AfterTokens  int64
}

// ShouldCompact reports whether history's estimated token count has
// reached TriggerRatio of contextWindow.
func ShouldCompact(history []*models.Message, contextWindow int) bool {
	if contextWindow <= 0 || len(history) == 0 {
		return false
	}
	estimated := EstimateMessagesTokens(toInternalMessages(history))
	return float64(estimated) >= float64(contextWindow)*TriggerRatio
}

// Run executes cfpm_memory_v1, falling back to legacy_segmented if the
// side-channel summarization call fails (spec §4.3 steps 1-5).
func Run(ctx context.Context, provider agent.LLMProvider, model string, history []*models.Message, extraInstructions string, contextWindow int) (*Result, error) {
	before := int64(EstimateMessagesTokens(toInternalMessages(history)))

	messages, err := runCFPMMemoryV1(ctx, provider, model, history, extraInstructions)
	strategy := StrategyCFPMMemoryV1
	if err != nil {
		messages = runLegacySegmented(history, contextWindow)
		strategy = StrategyLegacySegment
	}

	after := int64(EstimateMessagesTokens(toInternalMessages(messages)))
	return &Result{
		Strategy:     strategy,
		Messages:     messages,
		BeforeTokens: before,
		AfterTokens:  after,
	}, nil
}

// runCFPMMemoryV1 partitions history into head (system + extra
// instructions + first user turn), a summarized body, and the most recent
// RecentTurnsKept turns kept verbatim, then reassembles them (spec §4.3
// step 2-4).
func runCFPMMemoryV1(ctx context.Context, provider agent.LLMProvider, model string, history []*models.Message, extraInstructions string) ([]*models.Message, error) {
	if provider == nil {
		return nil, fmt.Errorf("no summarization provider configured")
	}

	head, body := splitHead(history)
	turns := groupIntoTurns(body)

	if len(turns) <= RecentTurnsKept {
		// Nothing old enough to summarize; compaction is a no-op beyond
		// the head/body split.
		return history, nil
	}

	toSummarize := turns[:len(turns)-RecentTurnsKept]
	recent := turns[len(turns)-RecentTurnsKept:]

	summaryText, err := summarizeTurns(ctx, provider, model, toSummarize, extraInstructions)
	if err != nil {
		return nil, err
	}

	summaryMsg := &models.Message{
		Role:    models.RoleSystem,
		Content: summaryText,
		Metadata: map[string]any{
			"compaction_tag": CompactionSummaryTag,
		},
		CreatedAt: time.Now(),
	}

	result := append([]*models.Message{}, head...)
	result = append(result, summaryMsg)
	for _, turn := range recent {
		result = append(result, turn...)
	}
	return result, nil
}

// runLegacySegmented drops oldest body turns until the estimate falls
// below FallbackRatio of the context window (spec §4.3 step 5).
func runLegacySegmented(history []*models.Message, contextWindow int) []*models.Message {
	head, body := splitHead(history)
	turns := groupIntoTurns(body)

	budget := int(float64(contextWindow) * FallbackRatio)
	if budget <= 0 {
		budget = DefaultContextWindow
	}

	kept := make([][]*models.Message, 0, len(turns))
	kept = append(kept, turns...)
	for len(kept) > 0 {
		total := EstimateMessagesTokens(toInternalMessages(flatten(head, kept)))
		if total <= budget {
			break
		}
		kept = kept[1:]
	}

	return flatten(head, kept)
}

func flatten(head []*models.Message, turns [][]*models.Message) []*models.Message {
	result := append([]*models.Message{}, head...)
	for _, turn := range turns {
		result = append(result, turn...)
	}
	return result
}

// splitHead separates the leading system/instruction block and the first
// user turn from the rest of a session's history (spec §4.3 step 2: "head
// = system + extra_instructions + first user turn").
func splitHead(history []*models.Message) (head, body []*models.Message) {
	i := 0
	for i < len(history) && history[i].Role == models.RoleSystem {
		head = append(head, history[i])
		i++
	}
	if i < len(history) {
		head = append(head, history[i])
		i++
	}
	return head, history[i:]
}

// groupIntoTurns buckets messages into turns at user-message boundaries.
func groupIntoTurns(messages []*models.Message) [][]*models.Message {
	var turns [][]*models.Message
	var current []*models.Message
	for _, msg := range messages {
		if msg.Role == models.RoleUser && len(current) > 0 {
			turns = append(turns, current)
			current = nil
		}
		current = append(current, msg)
	}
	if len(current) > 0 {
		turns = append(turns, current)
	}
	return turns
}

func summarizeTurns(ctx context.Context, provider agent.LLMProvider, model string, turns [][]*models.Message, extraInstructions string) (string, error) {
	var flat []*models.Message
	for _, turn := range turns {
		flat = append(flat, turn...)
	}

	system := "Summarize the following conversation history concisely, preserving decisions, facts, and open tasks."
	if extraInstructions != "" {
		system = system + "\n" + extraInstructions
	}

	req := &agent.CompletionRequest{
		Model:  model,
		System: system,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: FormatMessagesForSummary(toInternalMessages(flat))},
		},
		MaxTokens: 2048,
	}

	ch, err := provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	var out string
	for chunk := range ch {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return "", chunk.Error
		}
		if chunk.Done {
			break
		}
		out += chunk.Text
	}
	if out == "" {
		return "", fmt.Errorf("empty summary from provider")
	}
	return out, nil
}

func toInternalMessages(messages []*models.Message) []*Message {
	out := make([]*Message, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		out = append(out, &Message{
			Role:      string(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.CreatedAt.Unix(),
			ID:        msg.ID,
		})
	}
	return out
}
