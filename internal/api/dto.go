package api

import (
	"encoding/json"
	"strconv"

	"menza/internal/booking"
	"menza/internal/manager"
	"menza/internal/model"
	"menza/internal/slots"
)

// identifier decodes an id field leniently. Anything that is not a JSON integer becomes 0,
// which reservation validation rejects as an invalid identifier.
type identifier int64

func (id *identifier) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		*id = 0
		return nil
	}
	*id = identifier(n)
	return nil
}

type reservationRequest struct {
	StudentID identifier `json:"studentId"`
	CanteenID identifier `json:"canteenId"`
	Date      string     `json:"date"`
	Time      string     `json:"time"`
	Duration  int        `json:"duration"`
}

func (r reservationRequest) toBooking() booking.ReservationRequest {
	return booking.ReservationRequest{
		StudentID: int64(r.StudentID),
		CanteenID: int64(r.CanteenID),
		Date:      r.Date,
		Time:      r.Time,
		Duration:  r.Duration,
	}
}

type reservationResponse struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	StudentID int64  `json:"studentId"`
	CanteenID string `json:"canteenId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Duration  int    `json:"duration"`
}

func statusLabel(s model.ReservationStatus) string {
	switch s {
	case model.StatusActive:
		return "Active"
	case model.StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

func toReservationResponse(r *model.Reservation) reservationResponse {
	return reservationResponse{
		ID:        r.ID,
		Status:    statusLabel(r.Status),
		StudentID: r.StudentID,
		CanteenID: strconv.FormatInt(r.CanteenID, 10),
		Date:      slots.FormatDate(r.Date),
		Time:      r.Time,
		Duration:  r.Duration,
	}
}

func toReservationResponses(rs []model.Reservation) []reservationResponse {
	out := make([]reservationResponse, 0, len(rs))
	for i := range rs {
		out = append(out, toReservationResponse(&rs[i]))
	}
	return out
}

type workingHourDTO struct {
	Meal string `json:"meal"`
	From string `json:"from"`
	To   string `json:"to"`
}

type canteenResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Location     string           `json:"location"`
	Capacity     int              `json:"capacity"`
	WorkingHours []workingHourDTO `json:"workingHours"`
}

func toCanteenResponse(c *model.Canteen) canteenResponse {
	hours := make([]workingHourDTO, 0, len(c.WorkingHours))
	for _, wh := range c.WorkingHours {
		hours = append(hours, workingHourDTO{Meal: string(wh.Meal), From: wh.From, To: wh.To})
	}
	return canteenResponse{
		ID:           strconv.FormatInt(c.ID, 10),
		Name:         c.Name,
		Location:     c.Location,
		Capacity:     c.Capacity,
		WorkingHours: hours,
	}
}

type createCanteenRequest struct {
	Name         string           `json:"name"`
	Location     string           `json:"location"`
	Capacity     int              `json:"capacity"`
	WorkingHours []workingHourDTO `json:"workingHours"`
}

func (r createCanteenRequest) toInput() *manager.CanteenInput {
	return &manager.CanteenInput{
		Name:         r.Name,
		Location:     r.Location,
		Capacity:     r.Capacity,
		WorkingHours: toWorkingHourInputs(r.WorkingHours),
	}
}

type updateCanteenRequest struct {
	Name         *string          `json:"name"`
	Location     *string          `json:"location"`
	Capacity     *int             `json:"capacity"`
	WorkingHours []workingHourDTO `json:"workingHours"`
}

func (r updateCanteenRequest) toPatch() *manager.CanteenPatch {
	return &manager.CanteenPatch{
		Name:         r.Name,
		Location:     r.Location,
		Capacity:     r.Capacity,
		WorkingHours: toWorkingHourInputs(r.WorkingHours),
	}
}

func toWorkingHourInputs(in []workingHourDTO) []manager.WorkingHourInput {
	if in == nil {
		return nil
	}
	out := make([]manager.WorkingHourInput, 0, len(in))
	for _, wh := range in {
		out = append(out, manager.WorkingHourInput{Meal: wh.Meal, From: wh.From, To: wh.To})
	}
	return out
}

type slotDTO struct {
	Date              string `json:"date"`
	Meal              string `json:"meal"`
	StartTime         string `json:"startTime"`
	RemainingCapacity int    `json:"remainingCapacity"`
}

type canteenStatusResponse struct {
	CanteenID string    `json:"canteenId"`
	Slots     []slotDTO `json:"slots"`
}

func toCanteenStatusResponse(cs *booking.CanteenStatus) canteenStatusResponse {
	out := make([]slotDTO, 0, len(cs.Slots))
	for _, s := range cs.Slots {
		out = append(out, slotDTO{
			Date:              slots.FormatDate(s.Date),
			Meal:              s.Meal,
			StartTime:         s.Start.String(),
			RemainingCapacity: s.RemainingCapacity,
		})
	}
	return canteenStatusResponse{CanteenID: strconv.FormatInt(cs.CanteenID, 10), Slots: out}
}

type studentRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

func (r studentRequest) toInput() manager.StudentInput {
	return manager.StudentInput{Name: r.Name, Email: r.Email, IsAdmin: r.IsAdmin}
}

type studentResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

func toStudentResponse(s *model.Student) studentResponse {
	return studentResponse{ID: s.ID, Name: s.Name, Email: s.Email, IsAdmin: s.IsAdmin}
}
