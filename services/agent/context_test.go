package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"bookline/models"
	"bookline/services/intelligence"
)

// fakeConversations serves scripted history and records the requested limit.
type fakeConversations struct {
	messages       []models.Message
	err            error
	requestedLimit int
}

func (f *fakeConversations) FindOrCreate(context.Context, string, string) (*models.Conversation, error) {
	return nil, errors.New("not used")
}
func (f *fakeConversations) AppendMessage(context.Context, *models.Message) error { return nil }
func (f *fakeConversations) RecentMessages(_ context.Context, _ string, limit int) ([]models.Message, error) {
	f.requestedLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}
func (f *fakeConversations) HasProcessed(context.Context, string, string) (bool, error) {
	return false, nil
}
func (f *fakeConversations) MarkProcessed(context.Context, string, string) error { return nil }
func (f *fakeConversations) TouchInbound(context.Context, string) error          { return nil }
func (f *fakeConversations) TouchOutbound(context.Context, string) error         { return nil }

func TestBuildContextAppendsLatestUserMessage(t *testing.T) {
	convos := &fakeConversations{messages: []models.Message{
		{Role: models.RoleUser, Content: "Hi, do you do coloring?"},
		{Role: models.RoleAssistant, Content: "We do! Want to book?"},
	}}
	a := &Assembler{Conversations: convos, Directory: newFakeDirectory(testTenant())}

	bundle, err := a.BuildContext(context.Background(), testTenant(), "conv-1", "Yes, Thursday please")
	require.NoError(t, err)
	require.Len(t, bundle.History, 3)
	require.Equal(t, intelligence.RoleUser, bundle.History[0].Role)
	require.Equal(t, intelligence.RoleAssistant, bundle.History[1].Role)
	last := bundle.History[len(bundle.History)-1]
	require.Equal(t, intelligence.RoleUser, last.Role)
	require.Equal(t, "Yes, Thursday please", last.Content)
}

func TestBuildContextDoesNotDuplicatePersistedInbound(t *testing.T) {
	// The webhook persists the inbound message before context assembly, so the
	// stored window already ends with it; it must reach the model once.
	convos := &fakeConversations{messages: []models.Message{
		{Role: models.RoleUser, Content: "Hi, do you do coloring?"},
		{Role: models.RoleAssistant, Content: "We do! Want to book?"},
		{Role: models.RoleUser, Content: "Yes, Thursday please"},
	}}
	a := &Assembler{Conversations: convos, Directory: newFakeDirectory(testTenant())}

	bundle, err := a.BuildContext(context.Background(), testTenant(), "conv-1", "Yes, Thursday please")
	require.NoError(t, err)
	require.Len(t, bundle.History, 3)

	seen := 0
	for _, msg := range bundle.History {
		if msg.Role == intelligence.RoleUser && msg.Content == "Yes, Thursday please" {
			seen++
		}
	}
	require.Equal(t, 1, seen)
}

func TestBuildContextSkipsNonChatRoles(t *testing.T) {
	convos := &fakeConversations{messages: []models.Message{
		{Role: models.RoleSystem, Content: "processed:wamid.123"},
		{Role: models.RoleUser, Content: "Hello"},
	}}
	a := &Assembler{Conversations: convos, Directory: newFakeDirectory(testTenant())}

	bundle, err := a.BuildContext(context.Background(), testTenant(), "conv-1", "Hi again")
	require.NoError(t, err)
	require.Len(t, bundle.History, 2)
	for _, msg := range bundle.History {
		require.NotContains(t, msg.Content, "processed:")
	}
}

func TestBuildContextKeepsUserMessagesResemblingMarkers(t *testing.T) {
	// Only system-role marker rows are storage records; a customer typing the
	// sentinel prefix is still conversational content.
	convos := &fakeConversations{messages: []models.Message{
		{Role: models.RoleUser, Content: "processed: yes, my payment went through"},
	}}
	a := &Assembler{Conversations: convos, Directory: newFakeDirectory(testTenant())}

	bundle, err := a.BuildContext(context.Background(), testTenant(), "conv-1", "Did you get it?")
	require.NoError(t, err)
	require.Len(t, bundle.History, 2)
	require.Equal(t, "processed: yes, my payment went through", bundle.History[0].Content)
}

func TestBuildContextDefaultHistoryLimit(t *testing.T) {
	convos := &fakeConversations{}
	a := &Assembler{Conversations: convos, Directory: newFakeDirectory(testTenant())}

	_, err := a.BuildContext(context.Background(), testTenant(), "conv-1", "Hello")
	require.NoError(t, err)
	require.Equal(t, 20, convos.requestedLimit)

	a.HistoryLimit = 7
	_, err = a.BuildContext(context.Background(), testTenant(), "conv-1", "Hello")
	require.NoError(t, err)
	require.Equal(t, 7, convos.requestedLimit)
}

func TestBuildContextHistoryErrorPropagates(t *testing.T) {
	convos := &fakeConversations{err: errors.New("primary down")}
	a := &Assembler{Conversations: convos, Directory: newFakeDirectory(testTenant())}

	_, err := a.BuildContext(context.Background(), testTenant(), "conv-1", "Hello")
	require.Error(t, err)
}

func TestBuildContextSystemPromptCarriesTenantVoice(t *testing.T) {
	a := &Assembler{Conversations: &fakeConversations{}, Directory: newFakeDirectory(testTenant())}
	tenant := testTenant()
	tenant.CustomInstructions = "We close on public holidays."

	bundle, err := a.BuildContext(context.Background(), tenant, "conv-1", "Hello")
	require.NoError(t, err)
	require.Contains(t, bundle.SystemPrompt, "Bloom Studio")
	require.Contains(t, bundle.SystemPrompt, "warm and concise")
	require.Contains(t, bundle.SystemPrompt, "We close on public holidays.")
}

func TestBuildContextIncludesRelevantKnowledgeOnly(t *testing.T) {
	dir := newFakeDirectory(testTenant())
	dir.knowledge = []models.KnowledgeSnippet{
		{ID: "k1", TenantID: "tenant-1", Title: "Parking", Content: "Free parking behind the studio building"},
		{ID: "k2", TenantID: "tenant-1", Title: "Gift cards", Content: "Gift cards expire after one year"},
	}
	a := &Assembler{Conversations: &fakeConversations{}, Directory: dir}

	bundle, err := a.BuildContext(context.Background(), testTenant(), "conv-1", "Is there parking near the studio?")
	require.NoError(t, err)
	require.Contains(t, bundle.SystemPrompt, "Free parking")
	require.NotContains(t, bundle.SystemPrompt, "Gift cards")
}

func TestBuildContextKnowledgeFailureDegrades(t *testing.T) {
	dir := newFakeDirectory(testTenant())
	dir.knowledgeErr = errors.New("index unavailable")
	a := &Assembler{Conversations: &fakeConversations{}, Directory: dir}

	bundle, err := a.BuildContext(context.Background(), testTenant(), "conv-1", "Is there parking?")
	require.NoError(t, err)
	require.NotEmpty(t, bundle.SystemPrompt)
	require.NotContains(t, bundle.SystemPrompt, "knowledge")
}
