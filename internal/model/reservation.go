package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusActive    ReservationStatus = "active"
	StatusCancelled ReservationStatus = "cancelled"
)

// Reservation is a student's booking of a canteen for one interval on one date.
type Reservation struct {
	ID        int64             `json:"id"`
	StudentID int64             `json:"student_id"`
	CanteenID int64             `json:"canteen_id"`
	Date      time.Time         `json:"date"`     // midnight UTC
	Time      string            `json:"time"`     // "12:30"
	Duration  int               `json:"duration"` // minutes, 30 or 60
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsActive reports whether the reservation still counts toward capacity and conflicts.
func (r *Reservation) IsActive() bool {
	return r.Status == StatusActive
}
