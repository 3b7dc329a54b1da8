package agent

import (
	"context"
	"sync"

	"bookline/models"
	"bookline/services/intelligence"
	"bookline/utils"

	"go.uber.org/zap"
)

const (
	defaultMaxRounds = 5

	// FallbackReply is sent when the model produced no usable text: provider
	// failure, timeout, or round exhaustion without a text turn.
	FallbackReply = "Sorry, I'm having trouble right now. Please try again in a moment."
)

// Result is the terminal output of one orchestration run.
type Result struct {
	Reply  string
	Usage  models.Usage
	Rounds int
	Model  string
}

// Orchestrator drives the bounded tool-calling loop against a model provider.
// Each round it sends the assembled context plus tool results so far; tool
// requests are dispatched through the catalog and fed back, text-only
// responses terminate the run.
type Orchestrator struct {
	Provider  intelligence.Provider
	MaxRounds int
	MaxTokens int
}

// Run executes the loop to termination. It never returns an empty reply and
// never surfaces tool errors as Go errors; only the accumulated usage and the
// final text leave the loop.
func (o *Orchestrator) Run(ctx context.Context, bundle *ContextBundle, catalog *Catalog) *Result {
	logger := utils.GetLogger()
	maxRounds := o.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}

	result := &Result{Model: o.Provider.ModelName()}
	messages := append([]intelligence.Message(nil), bundle.History...)
	specs := catalog.Specs()
	lastText := ""

	for round := 0; round < maxRounds; round++ {
		result.Rounds = round + 1

		turn, err := o.Provider.Complete(ctx, intelligence.Request{
			System:    bundle.SystemPrompt,
			Messages:  messages,
			Tools:     specs,
			MaxTokens: o.MaxTokens,
		})
		if err != nil {
			logger.Error("model provider call failed",
				zap.Int("round", round), zap.Error(err))
			result.Reply = nonEmpty(lastText, FallbackReply)
			return result
		}
		result.Usage.Add(turn.Usage)

		if len(turn.ToolCalls) == 0 {
			result.Reply = nonEmpty(turn.Text, FallbackReply)
			return result
		}
		if turn.Text != "" {
			lastText = turn.Text
		}

		messages = append(messages, intelligence.Message{
			Role:      intelligence.RoleAssistant,
			Content:   turn.Text,
			ToolCalls: turn.ToolCalls,
		})
		messages = append(messages, intelligence.Message{
			Role:        intelligence.RoleTool,
			ToolResults: o.dispatchRound(ctx, catalog, turn.ToolCalls),
		})
	}

	// Round bound reached while the model still wanted tools.
	logger.Warn("orchestration round bound reached", zap.Int("maxRounds", maxRounds))
	result.Reply = nonEmpty(lastText, FallbackReply)
	return result
}

// dispatchRound executes every requested tool. Tools within a round run
// concurrently; a failure in one never aborts its siblings, and results come
// back in call order.
func (o *Orchestrator) dispatchRound(ctx context.Context, catalog *Catalog, calls []intelligence.ToolCall) []intelligence.ToolResult {
	results := make([]intelligence.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call intelligence.ToolCall) {
			defer wg.Done()
			results[i] = catalog.Dispatch(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
