package model

import (
	"time"

	"groundslot/internal/slots"
)

// AvailabilityRule is a recurring weekly open window.
type AvailabilityRule struct {
	ID        int64           `json:"id"`
	GroundID  int64           `json:"ground_id"`
	DayOfWeek int             `json:"day_of_week"` // 0-6 (Monday-Sunday)
	StartTime slots.TimeOfDay `json:"start_time"`
	EndTime   slots.TimeOfDay `json:"end_time"`
	CreatedAt time.Time       `json:"created_at"`
}

// DayWindows is one day of a weekly availability submission.
type DayWindows struct {
	DayOfWeek int
	Windows   []slots.Window
}

// AvailabilityBlock removes availability on a single date
// (maintenance, private event, etc.).
type AvailabilityBlock struct {
	ID        int64           `json:"id"`
	GroundID  int64           `json:"ground_id"`
	Date      time.Time       `json:"date"`
	StartTime slots.TimeOfDay `json:"start_time"`
	EndTime   slots.TimeOfDay `json:"end_time"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}
