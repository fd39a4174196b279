package model

import (
	"strings"
	"time"

	"groundslot/internal/slots"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

type ReservationStatus string

const (
	StatusProvisional ReservationStatus = "PROVISIONAL" // awaiting payment
	StatusConfirmed   ReservationStatus = "CONFIRMED"
	StatusCancelled   ReservationStatus = "CANCELLED"
)

type Origin string

const (
	OriginOnline  Origin = "ONLINE"
	OriginOffline Origin = "OFFLINE" // walk-in or cash booking recorded by the owner
)

// ParseOrigin maps user input to an Origin; empty input means online.
func ParseOrigin(s string) (Origin, bool) {
	switch Origin(strings.ToUpper(strings.TrimSpace(s))) {
	case "", OriginOnline:
		return OriginOnline, true
	case OriginOffline:
		return OriginOffline, true
	default:
		return "", false
	}
}

// Reservation holds one catalog slot of a ground on a date.
type Reservation struct {
	ID              int64             `json:"id"`
	GroundID        int64             `json:"ground_id"`
	Date            time.Time         `json:"date"`
	StartTime       slots.TimeOfDay   `json:"start_time"`
	EndTime         slots.TimeOfDay   `json:"end_time"`
	HolderID        *int64            `json:"holder_id,omitempty"` // nil for offline bookings
	CreatorID       int64             `json:"creator_id"`
	Origin          Origin            `json:"origin"`
	Status          ReservationStatus `json:"status"`
	TransactionUUID string            `json:"transaction_uuid,omitempty"`
	TransactionCode string            `json:"transaction_code,omitempty"`
	ExpectedAmount  string            `json:"expected_amount,omitempty"`
	PaidAmount      string            `json:"paid_amount,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Slot returns the reserved interval.
func (r *Reservation) Slot() slots.TimeSlot {
	return slots.TimeSlot{Start: r.StartTime, End: r.EndTime}
}

// DateString renders the reservation date as YYYY-MM-DD.
func (r *Reservation) DateString() string {
	return r.Date.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// DateOnly truncates t to its calendar date at UTC midnight.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
