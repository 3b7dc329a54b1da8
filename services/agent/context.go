package agent

import (
	"context"
	"sort"
	"strings"
	"text/template"
	"time"

	conversationRepo "bookline/database/repository/conversation"
	tenantRepo "bookline/database/repository/tenant"
	"bookline/models"
	"bookline/services/intelligence"
	"bookline/utils"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit     = 20
	maxKnowledgeSnippets    = 3
	knowledgeScoreThreshold = 0.2
	knowledgeTimeout        = 2 * time.Second
)

var systemPromptTmpl = template.Must(template.New("system").Parse(
	`You are the virtual receptionist for {{.BusinessName}}, answering customers over WhatsApp.
{{- if .Tone}}
Tone: {{.Tone}}.
{{- end}}
Today is {{.Today}} ({{.Timezone}}).

You book, reschedule and cancel appointments using the tools available to you.
Always check availability before offering times, and only offer times a tool returned.
When a booking fails because the slot was taken, check availability again and offer alternatives.
Never invent services, professionals or appointment ids.
Keep replies short and conversational; this is a chat, not an email.
{{- if .CustomInstructions}}

Business instructions:
{{.CustomInstructions}}
{{- end}}
{{- if .Snippets}}

Business knowledge that may help:
{{- range .Snippets}}
- {{.Title}}: {{.Content}}
{{- end}}
{{- end}}`))

// ContextBundle is everything the orchestrator seeds a run with.
type ContextBundle struct {
	SystemPrompt string
	History      []intelligence.Message
}

// Assembler builds the bounded message history and tenant-specific system
// prompt fed to the model.
type Assembler struct {
	Conversations conversationRepo.ConversationRepository
	Directory     tenantRepo.TenantRepository
	HistoryLimit  int
}

// BuildContext resolves a bounded window of prior messages and renders the
// tenant system prompt. Knowledge retrieval failures are non-fatal and simply
// omit the snippet set.
func (a *Assembler) BuildContext(ctx context.Context, tenant *models.Tenant, conversationID, latestUserMessage string) (*ContextBundle, error) {
	limit := a.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	stored, err := a.Conversations.RecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	history := make([]intelligence.Message, 0, len(stored)+1)
	for _, msg := range stored {
		switch msg.Role {
		case models.RoleUser:
			history = append(history, intelligence.Message{Role: intelligence.RoleUser, Content: msg.Content})
		case models.RoleAssistant:
			history = append(history, intelligence.Message{Role: intelligence.RoleAssistant, Content: msg.Content})
		}
	}
	// The ingress persists the inbound message before assembling context, so
	// the stored window usually already ends with it. Append only when the
	// persist was missed (it is log-and-continue on failure).
	if n := len(history); n == 0 || history[n-1].Role != intelligence.RoleUser || history[n-1].Content != latestUserMessage {
		history = append(history, intelligence.Message{Role: intelligence.RoleUser, Content: latestUserMessage})
	}

	snippets := a.relevantSnippets(ctx, tenant.ID, latestUserMessage)

	var sb strings.Builder
	err = systemPromptTmpl.Execute(&sb, map[string]any{
		"BusinessName":       tenant.Name,
		"Tone":               tenant.Tone,
		"CustomInstructions": tenant.CustomInstructions,
		"Today":              time.Now().In(tenant.Location()).Format("Monday, 2006-01-02"),
		"Timezone":           tenant.Location().String(),
		"Snippets":           snippets,
	})
	if err != nil {
		return nil, err
	}

	return &ContextBundle{SystemPrompt: sb.String(), History: history}, nil
}

type scoredSnippet struct {
	snippet models.KnowledgeSnippet
	score   float64
}

// relevantSnippets scores tenant knowledge against the latest user message by
// keyword overlap and keeps the best few above the threshold.
func (a *Assembler) relevantSnippets(ctx context.Context, tenantID, query string) []models.KnowledgeSnippet {
	kctx, cancel := context.WithTimeout(ctx, knowledgeTimeout)
	defer cancel()

	all, err := a.Directory.KnowledgeByTenant(kctx, tenantID)
	if err != nil {
		utils.GetLogger().Warn("knowledge retrieval failed, continuing without snippets",
			zap.String("tenantID", tenantID), zap.Error(err))
		return nil
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	scored := make([]scoredSnippet, 0, len(all))
	for _, snippet := range all {
		score := overlapScore(queryTokens, tokenize(snippet.Title+" "+snippet.Content))
		if score >= knowledgeScoreThreshold {
			scored = append(scored, scoredSnippet{snippet: snippet, score: score})
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > maxKnowledgeSnippets {
		scored = scored[:maxKnowledgeSnippets]
	}

	out := make([]models.KnowledgeSnippet, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.snippet)
	}
	return out
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) >= 3 {
			tokens[word] = true
		}
	}
	return tokens
}

// overlapScore is the fraction of query tokens present in the document.
func overlapScore(query, doc map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if doc[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
