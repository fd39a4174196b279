// Package booking holds the slot availability read path, the booking
// conflict guard and the reservation state machine.
package booking

import (
	"fmt"

	"groundslot/internal/domain"
	"groundslot/internal/model"
)

// FSM is the reservation lifecycle. PROVISIONAL -> PROVISIONAL is the
// payment initiate step; CONFIRMED and CANCELLED are terminal.
type FSM struct {
	transitions map[model.ReservationStatus][]model.ReservationStatus
}

// NewFSM creates the reservation state machine.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[model.ReservationStatus][]model.ReservationStatus{
			model.StatusProvisional: {model.StatusProvisional, model.StatusConfirmed, model.StatusCancelled},
			model.StatusConfirmed:   {},
			model.StatusCancelled:   {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to model.ReservationStatus) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns domain.ErrInvalidTransition when from -> to is not allowed.
func (f *FSM) Check(from, to model.ReservationStatus) error {
	if !f.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}
	return nil
}

// IsTerminal reports whether no transition leaves status.
func (f *FSM) IsTerminal(status model.ReservationStatus) bool {
	return len(f.transitions[status]) == 0
}

// InitialStatus is the status a new reservation starts in.
func InitialStatus(origin model.Origin) model.ReservationStatus {
	if origin == model.OriginOffline {
		return model.StatusConfirmed
	}
	return model.StatusProvisional
}
