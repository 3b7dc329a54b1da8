package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation identifies an ongoing exchange between one customer address and
// one tenant. Created on first inbound message, never deleted.
type Conversation struct {
	ID              string    `bson:"id" json:"id"`
	TenantID        string    `bson:"tenant_id" json:"tenant_id"`
	CustomerAddress string    `bson:"customer_address" json:"customer_address"`
	LastInboundAt   time.Time `bson:"last_inbound_at,omitempty" json:"last_inbound_at,omitempty"`
	LastOutboundAt  time.Time `bson:"last_outbound_at,omitempty" json:"last_outbound_at,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// Usage carries token accounting for one model turn.
type Usage struct {
	InputTokens  int `bson:"input_tokens" json:"input_tokens"`
	OutputTokens int `bson:"output_tokens" json:"output_tokens"`
	TotalTokens  int `bson:"total_tokens" json:"total_tokens"`
}

// Add accumulates usage across orchestration rounds.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Message is an ordered entry in a Conversation. Messages are totally ordered
// by creation time; role alternation is not enforced.
type Message struct {
	ID             string    `bson:"id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	Role           string    `bson:"role" json:"role"`
	Content        string    `bson:"content" json:"content"`
	Usage          *Usage    `bson:"usage,omitempty" json:"usage,omitempty"`
	Model          string    `bson:"model,omitempty" json:"model,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
