// Package agent hosts the conversational booking engine: the tool catalog the
// model may invoke, the context assembler, and the bounded orchestration loop.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	appointmentRepo "bookline/database/repository/appointment"
	tenantRepo "bookline/database/repository/tenant"
	"bookline/models"
	"bookline/services/availability"
	"bookline/services/intelligence"

	"github.com/google/uuid"
)

// ToolKind enumerates every tool the catalog exposes. Dispatch switches on it
// exhaustively, so an unhandled kind is a compile-time smell rather than a
// runtime lookup miss.
type ToolKind int

const (
	ToolCheckAvailability ToolKind = iota
	ToolCreateAppointment
	ToolCancelAppointment
	ToolRescheduleAppointment
	ToolIdentifyCustomer
	ToolGetServices
	ToolGetProfessionals
	ToolSaveCustomerPreference
	ToolGetUpcomingAppointments
)

var toolNames = map[ToolKind]string{
	ToolCheckAvailability:       "check_availability",
	ToolCreateAppointment:       "create_appointment",
	ToolCancelAppointment:       "cancel_appointment",
	ToolRescheduleAppointment:   "reschedule_appointment",
	ToolIdentifyCustomer:        "identify_customer",
	ToolGetServices:             "get_services",
	ToolGetProfessionals:        "get_professionals",
	ToolSaveCustomerPreference:  "save_customer_preference",
	ToolGetUpcomingAppointments: "get_upcoming_appointments",
}

func kindOf(name string) (ToolKind, bool) {
	for kind, n := range toolNames {
		if n == name {
			return kind, true
		}
	}
	return 0, false
}

// Catalog binds the domain tools to one tenant and one customer address for
// the duration of an orchestration run. Tenant and address come from the
// webhook, never from model-supplied arguments, so a manipulated tool call
// cannot reach across tenants or customers.
type Catalog struct {
	tenant       *models.Tenant
	customerAddr string
	appointments appointmentRepo.AppointmentRepository
	directory    tenantRepo.TenantRepository

	// Appointment ids surfaced to the model in this run. Cancel and
	// reschedule refuse ids the model never saw through
	// get_upcoming_appointments. Guarded because tools within a round
	// dispatch concurrently.
	mu       sync.Mutex
	surfaced map[string]bool
}

func (c *Catalog) markSurfaced(id string) {
	c.mu.Lock()
	c.surfaced[id] = true
	c.mu.Unlock()
}

func (c *Catalog) isSurfaced(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surfaced[id]
}

// NewCatalog constructs a catalog bound to a tenant and customer address.
func NewCatalog(tenant *models.Tenant, customerAddr string, appointments appointmentRepo.AppointmentRepository, directory tenantRepo.TenantRepository) *Catalog {
	return &Catalog{
		tenant:       tenant,
		customerAddr: customerAddr,
		appointments: appointments,
		directory:    directory,
		surfaced:     make(map[string]bool),
	}
}

// Specs declares every tool to the model provider.
func (c *Catalog) Specs() []intelligence.ToolSpec {
	return []intelligence.ToolSpec{
		{
			Name:        toolNames[ToolCheckAvailability],
			Description: "List open appointment slots for a service on a given date. Optionally restrict to one professional. Never books anything.",
			Parameters: intelligence.ObjectSchema{
				Properties: map[string]intelligence.PropertySpec{
					"date":            {Type: "string", Description: "Calendar date, YYYY-MM-DD, in the business timezone"},
					"service_id":      {Type: "string", Description: "Service to check availability for"},
					"professional_id": {Type: "string", Description: "Optional professional filter"},
				},
				Required: []string{"date", "service_id"},
			},
		},
		{
			Name:        toolNames[ToolCreateAppointment],
			Description: "Book an appointment for the customer at a start time previously returned by check_availability. Fails if the slot was taken in the meantime; offer alternatives then.",
			Parameters: intelligence.ObjectSchema{
				Properties: map[string]intelligence.PropertySpec{
					"service_id":      {Type: "string", Description: "Service being booked"},
					"professional_id": {Type: "string", Description: "Professional performing the service"},
					"start":           {Type: "string", Description: "Start time, ISO-8601 with timezone offset"},
					"notes":           {Type: "string", Description: "Optional notes from the customer"},
				},
				Required: []string{"service_id", "professional_id", "start"},
			},
		},
		{
			Name:        toolNames[ToolCancelAppointment],
			Description: "Cancel one of the customer's appointments. You must call get_upcoming_appointments first in this conversation to obtain a valid appointment_id.",
			Parameters: intelligence.ObjectSchema{
				Properties: map[string]intelligence.PropertySpec{
					"appointment_id": {Type: "string", Description: "Id returned by get_upcoming_appointments"},
					"reason":         {Type: "string", Description: "Optional cancellation reason"},
				},
				Required: []string{"appointment_id"},
			},
		},
		{
			Name:        toolNames[ToolRescheduleAppointment],
			Description: "Move one of the customer's appointments to a new start time. You must call get_upcoming_appointments first in this conversation to obtain a valid appointment_id.",
			Parameters: intelligence.ObjectSchema{
				Properties: map[string]intelligence.PropertySpec{
					"appointment_id": {Type: "string", Description: "Id returned by get_upcoming_appointments"},
					"new_start":      {Type: "string", Description: "New start time, ISO-8601 with timezone offset"},
				},
				Required: []string{"appointment_id", "new_start"},
			},
		},
		{
			Name:        toolNames[ToolIdentifyCustomer],
			Description: "Look up the customer's profile by their phone number. Pass a name to save it when they introduce themselves.",
			Parameters: intelligence.ObjectSchema{
				Properties: map[string]intelligence.PropertySpec{
					"name": {Type: "string", Description: "Customer's name, when they provided it"},
				},
			},
		},
		{
			Name:        toolNames[ToolGetServices],
			Description: "List the services this business offers, with durations and prices.",
			Parameters:  intelligence.ObjectSchema{},
		},
		{
			Name:        toolNames[ToolGetProfessionals],
			Description: "List the professionals customers can book with.",
			Parameters:  intelligence.ObjectSchema{},
		},
		{
			Name:        toolNames[ToolSaveCustomerPreference],
			Description: "Save a lasting customer preference (e.g. preferred professional or time of day) for future visits.",
			Parameters: intelligence.ObjectSchema{
				Properties: map[string]intelligence.PropertySpec{
					"preference": {Type: "string", Description: "The preference to remember"},
				},
				Required: []string{"preference"},
			},
		},
		{
			Name:        toolNames[ToolGetUpcomingAppointments],
			Description: "List the customer's upcoming appointments with their ids. Call this before cancelling or rescheduling.",
			Parameters:  intelligence.ObjectSchema{},
		},
	}
}

// Dispatch executes one tool call and always returns a structured result.
// Failures become error payloads the model can read and self-correct from;
// no tool error escapes as a Go error.
func (c *Catalog) Dispatch(ctx context.Context, call intelligence.ToolCall) intelligence.ToolResult {
	kind, ok := kindOf(call.Name)
	if !ok {
		return errorResult(call, fmt.Sprintf("unknown tool %q", call.Name))
	}

	var payload map[string]any
	var err error
	switch kind {
	case ToolCheckAvailability:
		payload, err = c.checkAvailability(ctx, call.Args)
	case ToolCreateAppointment:
		payload, err = c.createAppointment(ctx, call.Args)
	case ToolCancelAppointment:
		payload, err = c.cancelAppointment(ctx, call.Args)
	case ToolRescheduleAppointment:
		payload, err = c.rescheduleAppointment(ctx, call.Args)
	case ToolIdentifyCustomer:
		payload, err = c.identifyCustomer(ctx, call.Args)
	case ToolGetServices:
		payload, err = c.getServices(ctx)
	case ToolGetProfessionals:
		payload, err = c.getProfessionals(ctx)
	case ToolSaveCustomerPreference:
		payload, err = c.saveCustomerPreference(ctx, call.Args)
	case ToolGetUpcomingAppointments:
		payload, err = c.getUpcomingAppointments(ctx)
	}
	if err != nil {
		return errorResult(call, toolErrorMessage(err))
	}
	return intelligence.ToolResult{ID: call.ID, Name: call.Name, Payload: payload}
}

func errorResult(call intelligence.ToolCall, msg string) intelligence.ToolResult {
	return intelligence.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Payload: map[string]any{"error": msg},
		IsError: true,
	}
}

// toolErrorMessage phrases domain errors so the model knows how to recover.
func toolErrorMessage(err error) string {
	switch {
	case models.IsConflict(err):
		return "slot no longer available, check availability again and offer alternatives"
	case models.IsNotFound(err):
		return err.Error()
	case models.IsValidation(err):
		return err.Error()
	default:
		return "temporary internal error, apologize and ask the customer to try again shortly"
	}
}

// decodeArgs round-trips loosely typed model arguments into a typed struct.
func decodeArgs(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return models.NewValidationError("arguments are not serializable")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return models.NewValidationError("arguments do not match the tool schema: " + err.Error())
	}
	return nil
}

type checkAvailabilityArgs struct {
	Date           string `json:"date"`
	ServiceID      string `json:"service_id"`
	ProfessionalID string `json:"professional_id"`
}

func (c *Catalog) checkAvailability(ctx context.Context, args map[string]any) (map[string]any, error) {
	var in checkAvailabilityArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Date == "" || in.ServiceID == "" {
		return nil, models.NewValidationError("date and service_id are required")
	}

	loc := c.tenant.Location()
	date, err := time.ParseInLocation("2006-01-02", in.Date, loc)
	if err != nil {
		return nil, models.NewValidationError("date must be YYYY-MM-DD")
	}

	service, err := c.directory.GetService(ctx, c.tenant.ID, in.ServiceID)
	if err != nil {
		return nil, err
	}

	professionals, err := c.candidateProfessionals(ctx, in.ProfessionalID)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	byProfessional := make([]map[string]any, 0, len(professionals))
	for _, prof := range professionals {
		busyAppts, err := c.appointments.FindOverlapping(ctx, c.tenant.ID, prof.ID, dayStart, dayEnd)
		if err != nil {
			return nil, err
		}
		hours := c.tenant.WorkHours
		if len(prof.WorkHours) > 0 {
			hours = prof.WorkHours
		}
		slots, err := availability.ComputeSlots(availability.ComputeInput{
			Date:            date,
			Location:        loc,
			WorkHours:       hours,
			DurationMinutes: service.DurationMinutes,
			Busy:            availability.BusyFromAppointments(busyAppts),
		})
		if err != nil {
			return nil, err
		}
		times := make([]string, 0, len(slots))
		for _, s := range slots {
			times = append(times, s.Format(time.RFC3339))
		}
		byProfessional = append(byProfessional, map[string]any{
			"professional_id":   prof.ID,
			"professional_name": prof.Name,
			"slots":             times,
		})
	}

	return map[string]any{
		"date":             in.Date,
		"service_id":       service.ID,
		"duration_minutes": service.DurationMinutes,
		"availability":     byProfessional,
	}, nil
}

func (c *Catalog) candidateProfessionals(ctx context.Context, professionalID string) ([]models.Professional, error) {
	if professionalID != "" {
		prof, err := c.directory.GetProfessional(ctx, c.tenant.ID, professionalID)
		if err != nil {
			return nil, err
		}
		return []models.Professional{*prof}, nil
	}
	return c.directory.ProfessionalsByTenant(ctx, c.tenant.ID)
}

type createAppointmentArgs struct {
	ServiceID      string `json:"service_id"`
	ProfessionalID string `json:"professional_id"`
	Start          string `json:"start"`
	Notes          string `json:"notes"`
}

func (c *Catalog) createAppointment(ctx context.Context, args map[string]any) (map[string]any, error) {
	var in createAppointmentArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.ServiceID == "" || in.ProfessionalID == "" || in.Start == "" {
		return nil, models.NewValidationError("service_id, professional_id and start are required")
	}
	start, err := time.Parse(time.RFC3339, in.Start)
	if err != nil {
		return nil, models.NewValidationError("start must be ISO-8601 with timezone offset, e.g. 2025-03-10T14:00:00-03:00")
	}

	service, err := c.directory.GetService(ctx, c.tenant.ID, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if _, err := c.directory.GetProfessional(ctx, c.tenant.ID, in.ProfessionalID); err != nil {
		return nil, err
	}
	customer, err := c.directory.UpsertCustomer(ctx, &models.Customer{
		TenantID: c.tenant.ID,
		Address:  c.customerAddr,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	appt := &models.Appointment{
		ID:             uuid.New().String(),
		TenantID:       c.tenant.ID,
		ProfessionalID: in.ProfessionalID,
		CustomerID:     customer.ID,
		ServiceID:      service.ID,
		Start:          start,
		End:            start.Add(time.Duration(service.DurationMinutes) * time.Minute),
		Status:         models.AppointmentStatusConfirmed,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.appointments.Create(ctx, appt); err != nil {
		return nil, err
	}

	c.markSurfaced(appt.ID)
	return map[string]any{
		"appointment_id": appt.ID,
		"service":        service.Name,
		"start":          appt.Start.In(c.tenant.Location()).Format(time.RFC3339),
		"end":            appt.End.In(c.tenant.Location()).Format(time.RFC3339),
		"status":         appt.Status,
	}, nil
}

type cancelAppointmentArgs struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (c *Catalog) cancelAppointment(ctx context.Context, args map[string]any) (map[string]any, error) {
	var in cancelAppointmentArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.AppointmentID == "" {
		return nil, models.NewValidationError("appointment_id is required")
	}
	if !c.isSurfaced(in.AppointmentID) {
		return nil, models.NewValidationError("unknown appointment_id; call get_upcoming_appointments first and use one of its ids")
	}
	if err := c.appointments.Cancel(ctx, c.tenant.ID, in.AppointmentID, in.Reason); err != nil {
		return nil, err
	}
	return map[string]any{"appointment_id": in.AppointmentID, "status": models.AppointmentStatusCancelled}, nil
}

type rescheduleAppointmentArgs struct {
	AppointmentID string `json:"appointment_id"`
	NewStart      string `json:"new_start"`
}

func (c *Catalog) rescheduleAppointment(ctx context.Context, args map[string]any) (map[string]any, error) {
	var in rescheduleAppointmentArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.AppointmentID == "" || in.NewStart == "" {
		return nil, models.NewValidationError("appointment_id and new_start are required")
	}
	if !c.isSurfaced(in.AppointmentID) {
		return nil, models.NewValidationError("unknown appointment_id; call get_upcoming_appointments first and use one of its ids")
	}
	newStart, err := time.Parse(time.RFC3339, in.NewStart)
	if err != nil {
		return nil, models.NewValidationError("new_start must be ISO-8601 with timezone offset")
	}
	appt, err := c.appointments.Reschedule(ctx, c.tenant.ID, in.AppointmentID, newStart)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"appointment_id": appt.ID,
		"start":          appt.Start.In(c.tenant.Location()).Format(time.RFC3339),
		"end":            appt.End.In(c.tenant.Location()).Format(time.RFC3339),
		"status":         appt.Status,
	}, nil
}

type identifyCustomerArgs struct {
	Name string `json:"name"`
}

func (c *Catalog) identifyCustomer(ctx context.Context, args map[string]any) (map[string]any, error) {
	var in identifyCustomerArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	customer, err := c.directory.UpsertCustomer(ctx, &models.Customer{
		TenantID: c.tenant.ID,
		Address:  c.customerAddr,
		Name:     in.Name,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"customer_id": customer.ID,
		"name":        customer.Name,
		"known":       customer.Name != "",
		"notes":       customer.Notes,
	}, nil
}

func (c *Catalog) getServices(ctx context.Context) (map[string]any, error) {
	services, err := c.directory.ServicesByTenant(ctx, c.tenant.ID)
	if err != nil {
		return nil, err
	}
	list := make([]map[string]any, 0, len(services))
	for _, svc := range services {
		list = append(list, map[string]any{
			"service_id":       svc.ID,
			"name":             svc.Name,
			"duration_minutes": svc.DurationMinutes,
			"price":            svc.Price,
			"description":      svc.Description,
		})
	}
	return map[string]any{"services": list}, nil
}

func (c *Catalog) getProfessionals(ctx context.Context) (map[string]any, error) {
	professionals, err := c.directory.ProfessionalsByTenant(ctx, c.tenant.ID)
	if err != nil {
		return nil, err
	}
	list := make([]map[string]any, 0, len(professionals))
	for _, prof := range professionals {
		list = append(list, map[string]any{
			"professional_id": prof.ID,
			"name":            prof.Name,
			"role":            prof.Role,
		})
	}
	return map[string]any{"professionals": list}, nil
}

type savePreferenceArgs struct {
	Preference string `json:"preference"`
}

func (c *Catalog) saveCustomerPreference(ctx context.Context, args map[string]any) (map[string]any, error) {
	var in savePreferenceArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Preference == "" {
		return nil, models.NewValidationError("preference is required")
	}
	customer, err := c.directory.UpsertCustomer(ctx, &models.Customer{
		TenantID: c.tenant.ID,
		Address:  c.customerAddr,
	})
	if err != nil {
		return nil, err
	}
	if err := c.directory.AppendCustomerNote(ctx, c.tenant.ID, customer.ID, in.Preference); err != nil {
		return nil, err
	}
	return map[string]any{"saved": true}, nil
}

func (c *Catalog) getUpcomingAppointments(ctx context.Context) (map[string]any, error) {
	customer, err := c.directory.FindCustomerByAddress(ctx, c.tenant.ID, c.customerAddr)
	if err != nil {
		if models.IsNotFound(err) {
			return map[string]any{"appointments": []any{}}, nil
		}
		return nil, err
	}
	appointments, err := c.appointments.FindUpcomingByCustomer(ctx, c.tenant.ID, customer.ID, time.Now())
	if err != nil {
		return nil, err
	}
	loc := c.tenant.Location()
	list := make([]map[string]any, 0, len(appointments))
	for _, appt := range appointments {
		c.markSurfaced(appt.ID)
		list = append(list, map[string]any{
			"appointment_id":  appt.ID,
			"service_id":      appt.ServiceID,
			"professional_id": appt.ProfessionalID,
			"start":           appt.Start.In(loc).Format(time.RFC3339),
			"end":             appt.End.In(loc).Format(time.RFC3339),
			"status":          appt.Status,
		})
	}
	return map[string]any{"appointments": list}, nil
}
