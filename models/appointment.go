package models

import "time"

// Appointment statuses.
const (
	AppointmentStatusConfirmed = "confirmed"
	AppointmentStatusCancelled = "cancelled"
	AppointmentStatusCompleted = "completed"
)

// Appointment represents a confirmed booking record. For a given professional,
// no two non-cancelled appointments may overlap in time.
type Appointment struct {
	ID             string    `bson:"id" json:"id"`
	TenantID       string    `bson:"tenant_id" json:"tenant_id"`
	ProfessionalID string    `bson:"professional_id" json:"professional_id"`
	CustomerID     string    `bson:"customer_id" json:"customer_id"`
	ServiceID      string    `bson:"service_id" json:"service_id"`
	Start          time.Time `bson:"start" json:"start"`
	End            time.Time `bson:"end" json:"end"`
	Status         string    `bson:"status" json:"status"`
	Notes          string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CancelReason   string    `bson:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the appointment intersects the half-open
// interval [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.Start.Before(end) && a.End.After(start)
}
