package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookline/models"
	"bookline/services/intelligence"
)

// scriptedProvider replays a fixed sequence of turns and records every request
// it received. When the script runs out it repeats the last turn.
type scriptedProvider struct {
	turns    []*intelligence.Turn
	err      error
	requests []intelligence.Request
}

func (p *scriptedProvider) Complete(_ context.Context, req intelligence.Request) (*intelligence.Turn, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	idx := len(p.requests) - 1
	if idx >= len(p.turns) {
		idx = len(p.turns) - 1
	}
	return p.turns[idx], nil
}

func (p *scriptedProvider) ModelName() string { return "scripted-model" }

// fakeDirectory is an in-memory TenantRepository.
type fakeDirectory struct {
	mu            sync.Mutex
	tenant        *models.Tenant
	services      []models.Service
	professionals []models.Professional
	customers     map[string]*models.Customer // keyed by address
	knowledge     []models.KnowledgeSnippet
	knowledgeErr  error
	nextID        int
}

func newFakeDirectory(tenant *models.Tenant) *fakeDirectory {
	return &fakeDirectory{tenant: tenant, customers: make(map[string]*models.Customer)}
}

func (d *fakeDirectory) FindByID(_ context.Context, tenantID string) (*models.Tenant, error) {
	if d.tenant != nil && d.tenant.ID == tenantID {
		return d.tenant, nil
	}
	return nil, models.NewNotFoundError("tenant not found")
}

func (d *fakeDirectory) FindByWhatsAppNumber(_ context.Context, number string) (*models.Tenant, error) {
	if d.tenant != nil && d.tenant.WhatsAppNumber == number {
		return d.tenant, nil
	}
	return nil, models.NewNotFoundError("tenant not found")
}

func (d *fakeDirectory) ServicesByTenant(_ context.Context, tenantID string) ([]models.Service, error) {
	var out []models.Service
	for _, s := range d.services {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetService(_ context.Context, tenantID, serviceID string) (*models.Service, error) {
	for _, s := range d.services {
		if s.TenantID == tenantID && s.ID == serviceID {
			svc := s
			return &svc, nil
		}
	}
	return nil, models.NewNotFoundError("service " + serviceID + " not found")
}

func (d *fakeDirectory) ProfessionalsByTenant(_ context.Context, tenantID string) ([]models.Professional, error) {
	var out []models.Professional
	for _, p := range d.professionals {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetProfessional(_ context.Context, tenantID, professionalID string) (*models.Professional, error) {
	for _, p := range d.professionals {
		if p.TenantID == tenantID && p.ID == professionalID {
			prof := p
			return &prof, nil
		}
	}
	return nil, models.NewNotFoundError("professional " + professionalID + " not found")
}

func (d *fakeDirectory) FindCustomerByAddress(_ context.Context, tenantID, address string) (*models.Customer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.customers[address]; ok && c.TenantID == tenantID {
		cp := *c
		return &cp, nil
	}
	return nil, models.NewNotFoundError("customer not found")
}

func (d *fakeDirectory) UpsertCustomer(_ context.Context, customer *models.Customer) (*models.Customer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.customers[customer.Address]; ok {
		if customer.Name != "" {
			existing.Name = customer.Name
		}
		cp := *existing
		return &cp, nil
	}
	d.nextID++
	created := &models.Customer{
		ID:        fmt.Sprintf("cust-%d", d.nextID),
		TenantID:  customer.TenantID,
		Address:   customer.Address,
		Name:      customer.Name,
		CreatedAt: time.Now(),
	}
	d.customers[customer.Address] = created
	cp := *created
	return &cp, nil
}

func (d *fakeDirectory) AppendCustomerNote(_ context.Context, tenantID, customerID, note string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.customers {
		if c.TenantID == tenantID && c.ID == customerID {
			c.Notes = append(c.Notes, note)
			return nil
		}
	}
	return models.NewNotFoundError("customer not found")
}

func (d *fakeDirectory) KnowledgeByTenant(_ context.Context, tenantID string) ([]models.KnowledgeSnippet, error) {
	if d.knowledgeErr != nil {
		return nil, d.knowledgeErr
	}
	var out []models.KnowledgeSnippet
	for _, k := range d.knowledge {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

// fakeAppointments is an in-memory AppointmentRepository that enforces the
// same overlap rule as the real store.
type fakeAppointments struct {
	mu    sync.Mutex
	appts map[string]*models.Appointment
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{appts: make(map[string]*models.Appointment)}
}

func (r *fakeAppointments) conflicts(tenantID, professionalID, excludeID string, start, end time.Time) bool {
	for _, a := range r.appts {
		if a.TenantID != tenantID || a.ProfessionalID != professionalID || a.ID == excludeID {
			continue
		}
		if a.Status == models.AppointmentStatusCancelled {
			continue
		}
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r *fakeAppointments) Create(_ context.Context, appt *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts(appt.TenantID, appt.ProfessionalID, "", appt.Start, appt.End) {
		return models.NewConflictError("requested slot overlaps an existing appointment")
	}
	cp := *appt
	r.appts[appt.ID] = &cp
	return nil
}

func (r *fakeAppointments) Cancel(_ context.Context, tenantID, appointmentID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[appointmentID]
	if !ok || a.TenantID != tenantID {
		return models.NewNotFoundError("appointment not found")
	}
	a.Status = models.AppointmentStatusCancelled
	a.CancelReason = reason
	return nil
}

func (r *fakeAppointments) Reschedule(_ context.Context, tenantID, appointmentID string, newStart time.Time) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[appointmentID]
	if !ok || a.TenantID != tenantID {
		return nil, models.NewNotFoundError("appointment not found")
	}
	dur := a.End.Sub(a.Start)
	if r.conflicts(tenantID, a.ProfessionalID, appointmentID, newStart, newStart.Add(dur)) {
		return nil, models.NewConflictError("requested slot overlaps an existing appointment")
	}
	a.Start = newStart
	a.End = newStart.Add(dur)
	cp := *a
	return &cp, nil
}

func (r *fakeAppointments) GetByID(_ context.Context, tenantID, appointmentID string) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[appointmentID]
	if !ok || a.TenantID != tenantID {
		return nil, models.NewNotFoundError("appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAppointments) FindOverlapping(_ context.Context, tenantID, professionalID string, from, to time.Time) ([]models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Appointment
	for _, a := range r.appts {
		if a.TenantID != tenantID {
			continue
		}
		if professionalID != "" && a.ProfessionalID != professionalID {
			continue
		}
		if a.Status == models.AppointmentStatusCancelled {
			continue
		}
		if a.Overlaps(from, to) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *fakeAppointments) FindUpcomingByCustomer(_ context.Context, tenantID, customerID string, from time.Time) ([]models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Appointment
	for _, a := range r.appts {
		if a.TenantID != tenantID || a.CustomerID != customerID {
			continue
		}
		if a.Status != models.AppointmentStatusConfirmed || a.Start.Before(from) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
