package conversationRepo

import (
	"context"
	"fmt"
	"time"

	"bookline/models"
	"bookline/utils"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// markerPrefix tags the sentinel messages that record processed provider
// message ids.
const markerPrefix = "processed:"

// dedupTTL bounds the redis fast-path entries; mongo remains source of truth.
const dedupTTL = 48 * time.Hour

type mongoConversationRepo struct {
	convColl *mongo.Collection
	msgColl  *mongo.Collection
	cache    *redis.Client
}

// NewMongoConversationRepo constructs a new MongoDB ConversationRepository.
// The redis client is optional; when nil, deduplication falls back to mongo
// marker lookups only.
func NewMongoConversationRepo(db *mongo.Database, cache *redis.Client) ConversationRepository {
	repo := &mongoConversationRepo{
		convColl: db.Collection("conversations"),
		msgColl:  db.Collection("messages"),
		cache:    cache,
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

func dedupKey(conversationID, providerMessageID string) string {
	return fmt.Sprintf("dedup:%s:%s", conversationID, providerMessageID)
}

func markerContent(providerMessageID string) string {
	return markerPrefix + providerMessageID
}

func (repo *mongoConversationRepo) FindOrCreate(ctx context.Context, tenantID, customerAddress string) (*models.Conversation, error) {
	now := time.Now().UTC()
	filter := bson.M{"tenant_id": tenantID, "customer_address": customerAddress}
	update := bson.M{
		"$setOnInsert": bson.M{
			"id":               uuid.New().String(),
			"tenant_id":        tenantID,
			"customer_address": customerAddress,
			"created_at":       now,
		},
		"$set": bson.M{"updated_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv models.Conversation
	if err := repo.convColl.FindOneAndUpdate(ctx, filter, update, opts).Decode(&conv); err != nil {
		return nil, models.NewPersistenceError("find-or-create conversation failed", err)
	}
	return &conv, nil
}

func (repo *mongoConversationRepo) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if _, err := repo.msgColl.InsertOne(ctx, msg); err != nil {
		return models.NewPersistenceError("append message failed", err)
	}
	return nil
}

// recentMessagesFilter matches a conversation's messages minus the idempotency
// markers. Markers are always system-role rows; a customer who happens to type
// the sentinel prefix must still surface in context.
func recentMessagesFilter(conversationID string) bson.M {
	return bson.M{
		"conversation_id": conversationID,
		"$nor": []bson.M{{
			"role":    models.RoleSystem,
			"content": primitive.Regex{Pattern: "^" + markerPrefix},
		}},
	}
}

func (repo *mongoConversationRepo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	filter := recentMessagesFilter(conversationID)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := repo.msgColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, models.NewPersistenceError("load recent messages failed", err)
	}
	defer cur.Close(ctx)

	var messages []models.Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, models.NewPersistenceError("decode messages failed", err)
	}

	// Query returned most-recent-first; callers expect oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (repo *mongoConversationRepo) HasProcessed(ctx context.Context, conversationID, providerMessageID string) (bool, error) {
	if repo.cache != nil {
		n, err := repo.cache.Exists(ctx, dedupKey(conversationID, providerMessageID)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
		if err != nil {
			// Redis being down must never block processing; fall through to mongo.
			utils.GetLogger().Warn("dedup cache lookup failed, falling back to mongo",
				zap.String("conversationID", conversationID), zap.Error(err))
		}
	}

	count, err := repo.msgColl.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"role":            models.RoleSystem,
		"content":         markerContent(providerMessageID),
	})
	if err != nil {
		// Fail open: an unreadable marker store means "not processed" so the
		// message is reprocessed rather than silently dropped.
		return false, models.NewPersistenceError("marker lookup failed", err)
	}
	return count > 0, nil
}

func (repo *mongoConversationRepo) MarkProcessed(ctx context.Context, conversationID, providerMessageID string) error {
	marker := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           models.RoleSystem,
		Content:        markerContent(providerMessageID),
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := repo.msgColl.InsertOne(ctx, marker); err != nil {
		// The durable marker write failed; the caller must not treat the
		// message as processed.
		return models.NewPersistenceError("marker write failed", err)
	}

	if repo.cache != nil {
		if err := repo.cache.Set(ctx, dedupKey(conversationID, providerMessageID), "1", dedupTTL).Err(); err != nil {
			utils.GetLogger().Warn("dedup cache write failed",
				zap.String("conversationID", conversationID), zap.Error(err))
		}
	}
	return nil
}

func (repo *mongoConversationRepo) TouchInbound(ctx context.Context, conversationID string) error {
	now := time.Now().UTC()
	return repo.touch(ctx, conversationID, bson.M{"last_inbound_at": now, "updated_at": now})
}

func (repo *mongoConversationRepo) TouchOutbound(ctx context.Context, conversationID string) error {
	now := time.Now().UTC()
	return repo.touch(ctx, conversationID, bson.M{"last_outbound_at": now, "updated_at": now})
}

func (repo *mongoConversationRepo) touch(ctx context.Context, conversationID string, fields bson.M) error {
	_, err := repo.convColl.UpdateOne(ctx, bson.M{"id": conversationID}, bson.M{"$set": fields})
	if err != nil {
		return models.NewPersistenceError("update conversation timestamps failed", err)
	}
	return nil
}
