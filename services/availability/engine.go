// Package availability computes conflict-free bookable slots from working
// hours and existing appointments. It is pure: no I/O, safe for concurrent
// use from multiple tool invocations.
package availability

import (
	"fmt"
	"strings"
	"time"

	"bookline/models"
)

// Interval is a half-open busy window [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// ComputeInput carries everything a slot computation needs. Busy holds the
// non-cancelled appointments intersecting the requested day, sorted ascending
// by start; the caller fetches them through the appointment repository.
type ComputeInput struct {
	Date            time.Time // only the date component is used
	Location        *time.Location
	WorkHours       models.WorkHours
	DurationMinutes int
	Busy            []Interval
}

var weekdayKeys = map[time.Weekday]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

// ComputeSlots walks a fixed grid of DurationMinutes steps across the day's
// working window and returns every candidate start that overlaps no busy
// interval. The cursor advances a full step past rejected candidates too:
// fixed-grid slotting, not greedy compaction.
func ComputeSlots(in ComputeInput) ([]time.Time, error) {
	if in.DurationMinutes <= 0 {
		return nil, models.NewValidationError(
			fmt.Sprintf("service duration must be positive, got %d", in.DurationMinutes))
	}

	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	day := time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 0, 0, 0, 0, loc)

	window, ok := in.WorkHours[weekdayKeys[day.Weekday()]]
	if !ok {
		return nil, nil // closed that day
	}
	startMin, err := parseWallClock(window.Start)
	if err != nil {
		return nil, nil
	}
	endMin, err := parseWallClock(window.End)
	if err != nil || endMin <= startMin {
		return nil, nil // malformed window, treat as closed
	}

	windowStart := day.Add(time.Duration(startMin) * time.Minute)
	windowEnd := day.Add(time.Duration(endMin) * time.Minute)
	step := time.Duration(in.DurationMinutes) * time.Minute

	var slots []time.Time
	for cursor := windowStart; !cursor.Add(step).After(windowEnd); cursor = cursor.Add(step) {
		if !overlapsAny(cursor, cursor.Add(step), in.Busy) {
			slots = append(slots, cursor)
		}
	}
	return slots, nil
}

// overlapsAny applies the half-open interval test candidateStart < busyEnd &&
// candidateEnd > busyStart, which also correctly excludes appointments that
// only partially overlap the day boundary.
func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if start.Before(b.End) && end.After(b.Start) {
			return true
		}
	}
	return false
}

// parseWallClock converts "HH:MM" to minutes from midnight.
func parseWallClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed wall clock %q", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("malformed wall clock %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("wall clock out of range %q", s)
	}
	return h*60 + m, nil
}

// BusyFromAppointments projects appointments onto busy intervals.
func BusyFromAppointments(appointments []models.Appointment) []Interval {
	busy := make([]Interval, 0, len(appointments))
	for _, a := range appointments {
		busy = append(busy, Interval{Start: a.Start, End: a.End})
	}
	return busy
}
