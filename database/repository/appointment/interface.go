package appointmentRepo

import (
	"context"
	"time"

	"bookline/models"
)

// AppointmentRepository owns all appointment state. Create and Reschedule run
// their overlap re-check and write as one atomic unit against the store; that
// transaction is the double-booking correctness boundary, not the slot engine.
type AppointmentRepository interface {
	Create(ctx context.Context, appt *models.Appointment) error
	Cancel(ctx context.Context, tenantID, appointmentID, reason string) error
	Reschedule(ctx context.Context, tenantID, appointmentID string, newStart time.Time) (*models.Appointment, error)
	GetByID(ctx context.Context, tenantID, appointmentID string) (*models.Appointment, error)
	FindOverlapping(ctx context.Context, tenantID, professionalID string, from, to time.Time) ([]models.Appointment, error)
	FindUpcomingByCustomer(ctx context.Context, tenantID, customerID string, from time.Time) ([]models.Appointment, error)
}
