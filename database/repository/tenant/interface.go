package tenantRepo

import (
	"context"

	"bookline/models"
)

// TenantRepository provides directory lookups for tenants and the entities the
// agent tools read: services, professionals, customers, knowledge snippets.
type TenantRepository interface {
	FindByID(ctx context.Context, tenantID string) (*models.Tenant, error)
	FindByWhatsAppNumber(ctx context.Context, number string) (*models.Tenant, error)

	ServicesByTenant(ctx context.Context, tenantID string) ([]models.Service, error)
	GetService(ctx context.Context, tenantID, serviceID string) (*models.Service, error)

	ProfessionalsByTenant(ctx context.Context, tenantID string) ([]models.Professional, error)
	GetProfessional(ctx context.Context, tenantID, professionalID string) (*models.Professional, error)

	FindCustomerByAddress(ctx context.Context, tenantID, address string) (*models.Customer, error)
	UpsertCustomer(ctx context.Context, customer *models.Customer) (*models.Customer, error)
	AppendCustomerNote(ctx context.Context, tenantID, customerID, note string) error

	KnowledgeByTenant(ctx context.Context, tenantID string) ([]models.KnowledgeSnippet, error)
}
