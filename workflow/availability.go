package workflow

import (
	"context"
	"time"

	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/utils"
)

// DefaultServiceDurationMinutes guards against zero-width bookings when a
// service carries no declared duration.
const DefaultServiceDurationMinutes = 60

type TimeSlot struct {
	Time      time.Time `json:"time"`
	Available bool      `json:"available"`
}

type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// AvailableSlots returns the bookable start-times of a professional on a
// date, chronologically ordered. "No slots" is an empty slice, not an error;
// only a store read failure surfaces.
func AvailableSlots(ctx context.Context, professionalId int, date time.Time, totalDurationMinutes int) ([]TimeSlot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewValidationError("business id is required")
	}

	hours, err := models.GetBusinessHours(ctx, businessId)
	if err != nil {
		return nil, utils.NewStoreError("load business hours", err)
	}

	opening, err := hours.OpeningOn(date)
	if err != nil {
		return nil, utils.NewValidationError("%s", err.Error())
	}
	closing, err := hours.ClosingOn(date)
	if err != nil {
		return nil, utils.NewValidationError("%s", err.Error())
	}

	reservations, err := models.GetOccupyingReservations(ctx, businessId, professionalId, opening, closing)
	if err != nil {
		return nil, utils.NewStoreError("load reservations", err)
	}

	busy := make([]BusyInterval, 0, len(reservations))
	for _, r := range reservations {
		busy = append(busy, BusyInterval{Start: r.StartTime, End: r.EndTime})
	}

	granularity := hours.GranularityMinutes
	if granularity <= 0 {
		granularity = 30
	}

	return ComputeSlots(opening, closing, granularity, totalDurationMinutes, busy, time.Now()), nil
}

// ComputeSlots enumerates the grid between opening and closing at the given
// granularity and marks each candidate start. A start is available iff every
// grid cell from start to start+duration is free, the booking ends by closing
// time, and the start has not already passed.
func ComputeSlots(opening, closing time.Time, granularityMinutes, durationMinutes int, busy []BusyInterval, now time.Time) []TimeSlot {
	if durationMinutes <= 0 {
		durationMinutes = DefaultServiceDurationMinutes
	}
	step := time.Duration(granularityMinutes) * time.Minute
	duration := time.Duration(durationMinutes) * time.Minute

	slots := make([]TimeSlot, 0, 32)
	for start := opening; start.Before(closing); start = start.Add(step) {
		end := start.Add(duration)
		available := !end.After(closing) && start.After(now)
		if available {
			for _, b := range busy {
				if models.IntervalsOverlap(start, end, b.Start, b.End) {
					available = false
					break
				}
			}
		}
		slots = append(slots, TimeSlot{Time: start, Available: available})
	}
	return slots
}

// AvailableStartTimes filters to the bookable starts only.
func AvailableStartTimes(slots []TimeSlot) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			out = append(out, s.Time)
		}
	}
	return out
}
