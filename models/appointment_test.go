package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppointmentOverlapsHalfOpen(t *testing.T) {
	appt := Appointment{
		Start: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
	}

	require.True(t, appt.Overlaps(
		time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 11, 30, 0, 0, time.UTC)))
	require.True(t, appt.Overlaps(
		time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)))

	// Touching boundaries do not overlap.
	require.False(t, appt.Overlaps(
		time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)))
	require.False(t, appt.Overlaps(
		time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)))
}

func TestUsageAdd(t *testing.T) {
	total := Usage{}
	total.Add(Usage{InputTokens: 10, OutputTokens: 4, TotalTokens: 14})
	total.Add(Usage{InputTokens: 7, OutputTokens: 3, TotalTokens: 10})
	require.Equal(t, Usage{InputTokens: 17, OutputTokens: 7, TotalTokens: 24}, total)
}

func TestErrorMatchers(t *testing.T) {
	require.True(t, IsConflict(NewConflictError("taken")))
	require.True(t, IsNotFound(NewNotFoundError("gone")))
	require.True(t, IsValidation(NewValidationError("bad input")))
	require.False(t, IsConflict(NewValidationError("bad input")))
}
