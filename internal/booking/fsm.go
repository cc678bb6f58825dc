package booking

import "menza/internal/model"

// FSM manages reservation status transitions. Cancelled is terminal.
type FSM struct {
	transitions map[model.ReservationStatus][]model.ReservationStatus
}

// NewFSM creates a new FSM with predefined transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[model.ReservationStatus][]model.ReservationStatus{
			model.StatusActive:    {model.StatusCancelled},
			model.StatusCancelled: {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to model.ReservationStatus) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
