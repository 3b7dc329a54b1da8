package tenantRepo

import (
	"context"
	"fmt"
	"time"

	"bookline/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoTenantRepo struct {
	tenantColl    *mongo.Collection
	serviceColl   *mongo.Collection
	profColl      *mongo.Collection
	customerColl  *mongo.Collection
	knowledgeColl *mongo.Collection
}

// NewMongoTenantRepo constructs a new MongoDB TenantRepository.
func NewMongoTenantRepo(db *mongo.Database) TenantRepository {
	repo := &mongoTenantRepo{
		tenantColl:    db.Collection("tenants"),
		serviceColl:   db.Collection("services"),
		profColl:      db.Collection("professionals"),
		customerColl:  db.Collection("customers"),
		knowledgeColl: db.Collection("knowledge"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

func (repo *mongoTenantRepo) FindByID(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := repo.tenantColl.FindOne(ctx, bson.M{"id": tenantID}).Decode(&tenant)
	if err == mongo.ErrNoDocuments {
		return nil, models.NewNotFoundError(fmt.Sprintf("tenant %s not found", tenantID))
	}
	if err != nil {
		return nil, models.NewPersistenceError("load tenant failed", err)
	}
	return &tenant, nil
}

func (repo *mongoTenantRepo) FindByWhatsAppNumber(ctx context.Context, number string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := repo.tenantColl.FindOne(ctx, bson.M{"whatsapp_number": number}).Decode(&tenant)
	if err == mongo.ErrNoDocuments {
		return nil, models.NewNotFoundError(fmt.Sprintf("no tenant registered for number %s", number))
	}
	if err != nil {
		return nil, models.NewPersistenceError("load tenant failed", err)
	}
	return &tenant, nil
}

func (repo *mongoTenantRepo) ServicesByTenant(ctx context.Context, tenantID string) ([]models.Service, error) {
	cur, err := repo.serviceColl.Find(ctx,
		bson.M{"tenant_id": tenantID, "active": true},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, models.NewPersistenceError("find services failed", err)
	}
	defer cur.Close(ctx)

	var services []models.Service
	if err := cur.All(ctx, &services); err != nil {
		return nil, models.NewPersistenceError("decode services failed", err)
	}
	return services, nil
}

func (repo *mongoTenantRepo) GetService(ctx context.Context, tenantID, serviceID string) (*models.Service, error) {
	var svc models.Service
	err := repo.serviceColl.FindOne(ctx, bson.M{"id": serviceID, "tenant_id": tenantID}).Decode(&svc)
	if err == mongo.ErrNoDocuments {
		return nil, models.NewNotFoundError(fmt.Sprintf("service %s not found", serviceID))
	}
	if err != nil {
		return nil, models.NewPersistenceError("load service failed", err)
	}
	return &svc, nil
}

func (repo *mongoTenantRepo) ProfessionalsByTenant(ctx context.Context, tenantID string) ([]models.Professional, error) {
	cur, err := repo.profColl.Find(ctx,
		bson.M{"tenant_id": tenantID, "active": true},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, models.NewPersistenceError("find professionals failed", err)
	}
	defer cur.Close(ctx)

	var professionals []models.Professional
	if err := cur.All(ctx, &professionals); err != nil {
		return nil, models.NewPersistenceError("decode professionals failed", err)
	}
	return professionals, nil
}

func (repo *mongoTenantRepo) GetProfessional(ctx context.Context, tenantID, professionalID string) (*models.Professional, error) {
	var prof models.Professional
	err := repo.profColl.FindOne(ctx, bson.M{"id": professionalID, "tenant_id": tenantID}).Decode(&prof)
	if err == mongo.ErrNoDocuments {
		return nil, models.NewNotFoundError(fmt.Sprintf("professional %s not found", professionalID))
	}
	if err != nil {
		return nil, models.NewPersistenceError("load professional failed", err)
	}
	return &prof, nil
}

func (repo *mongoTenantRepo) FindCustomerByAddress(ctx context.Context, tenantID, address string) (*models.Customer, error) {
	var customer models.Customer
	err := repo.customerColl.FindOne(ctx, bson.M{"tenant_id": tenantID, "address": address}).Decode(&customer)
	if err == mongo.ErrNoDocuments {
		return nil, models.NewNotFoundError(fmt.Sprintf("no customer with address %s", address))
	}
	if err != nil {
		return nil, models.NewPersistenceError("load customer failed", err)
	}
	return &customer, nil
}

func (repo *mongoTenantRepo) UpsertCustomer(ctx context.Context, customer *models.Customer) (*models.Customer, error) {
	filter := bson.M{"tenant_id": customer.TenantID, "address": customer.Address}
	set := bson.M{}
	if customer.Name != "" {
		set["name"] = customer.Name
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"id":         uuid.New().String(),
			"tenant_id":  customer.TenantID,
			"address":    customer.Address,
			"created_at": time.Now().UTC(),
		},
	}
	if len(set) > 0 {
		update["$set"] = set
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved models.Customer
	if err := repo.customerColl.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved); err != nil {
		return nil, models.NewPersistenceError("upsert customer failed", err)
	}
	return &saved, nil
}

func (repo *mongoTenantRepo) AppendCustomerNote(ctx context.Context, tenantID, customerID, note string) error {
	res, err := repo.customerColl.UpdateOne(ctx,
		bson.M{"id": customerID, "tenant_id": tenantID},
		bson.M{"$push": bson.M{"notes": note}})
	if err != nil {
		return models.NewPersistenceError("append customer note failed", err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError(fmt.Sprintf("customer %s not found", customerID))
	}
	return nil
}

func (repo *mongoTenantRepo) KnowledgeByTenant(ctx context.Context, tenantID string) ([]models.KnowledgeSnippet, error) {
	cur, err := repo.knowledgeColl.Find(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return nil, models.NewPersistenceError("find knowledge snippets failed", err)
	}
	defer cur.Close(ctx)

	var snippets []models.KnowledgeSnippet
	if err := cur.All(ctx, &snippets); err != nil {
		return nil, models.NewPersistenceError("decode knowledge snippets failed", err)
	}
	return snippets, nil
}
