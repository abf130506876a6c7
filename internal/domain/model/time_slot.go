package model

import "time"

// TimeSlot is a bookable duration with a price multiplier. Managed outside the bot.
type TimeSlot struct {
	ID              int
	DurationMinutes int
	Description     string
	PriceMultiplier float64
	IsActive        bool
	SortOrder       int
}

// DefaultTimeSlot is offered when the catalog table is empty or unreachable.
func DefaultTimeSlot() TimeSlot {
	return TimeSlot{
		ID:              1,
		DurationMinutes: 30,
		Description:     "30 minutes",
		PriceMultiplier: 1,
		IsActive:        true,
		SortOrder:       1,
	}
}

// UpcomingStarts returns the next n whole-hour start times strictly after now.
func UpcomingStarts(now time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	first := now.UTC().Truncate(time.Hour).Add(time.Hour)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = first.Add(time.Duration(i) * time.Hour)
	}
	return out
}
