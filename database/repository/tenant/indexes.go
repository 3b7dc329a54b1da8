// FILE: database/repository/tenant/indexes.go
package tenantRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes creates the necessary indexes on the directory collections.
func (r *mongoTenantRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tenantIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// Webhook ingress resolves tenants by their WhatsApp number.
		{
			Keys:    bson.D{{Key: "whatsapp_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("whatsapp_number_idx"),
		},
	}
	if _, err := r.tenantColl.Indexes().CreateMany(ctx, tenantIndexes); err != nil {
		return fmt.Errorf("failed to create tenant indexes: %w", err)
	}

	// One customer per (tenant, address); backs the upsert.
	customerIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "address", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("tenant_address_idx"),
		},
	}
	if _, err := r.customerColl.Indexes().CreateMany(ctx, customerIndexes); err != nil {
		return fmt.Errorf("failed to create customer indexes: %w", err)
	}

	scopedIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("tenant_entity_idx"),
		},
	}
	for _, coll := range []*mongo.Collection{r.serviceColl, r.profColl, r.knowledgeColl} {
		if _, err := coll.Indexes().CreateMany(ctx, scopedIndexes); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", coll.Name(), err)
		}
	}
	return nil
}
