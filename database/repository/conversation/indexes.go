// FILE: database/repository/conversation/indexes.go
package conversationRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes creates the necessary indexes on the conversations and
// messages collections.
func (r *mongoConversationRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	convIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// One conversation per (tenant, customer address); backs the upsert.
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "customer_address", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("tenant_address_idx"),
		},
	}
	if _, err := r.convColl.Indexes().CreateMany(ctx, convIndexes); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	msgIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// Primary query pattern: recent messages for a conversation.
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("conversation_created_idx"),
		},
		// At most one marker per provider message id per conversation.
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "content", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("conversation_marker_idx").
				SetPartialFilterExpression(bson.M{"role": "system"}),
		},
	}
	if _, err := r.msgColl.Indexes().CreateMany(ctx, msgIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}
