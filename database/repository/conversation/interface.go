package conversationRepo

import (
	"context"

	"bookline/models"
)

// ConversationRepository owns conversation threads, their messages, and the
// idempotency markers that guard against webhook replays.
//
// Markers are stored as system messages with a sentinel content prefix; they
// are a storage detail and never surface through RecentMessages.
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, tenantID, customerAddress string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	HasProcessed(ctx context.Context, conversationID, providerMessageID string) (bool, error)
	MarkProcessed(ctx context.Context, conversationID, providerMessageID string) error
	TouchInbound(ctx context.Context, conversationID string) error
	TouchOutbound(ctx context.Context, conversationID string) error
}
