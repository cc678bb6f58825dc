// Package apperr defines the error taxonomy shared by the reservation core and the
// HTTP layer. Each error carries a Kind that is mapped to a status code exactly once,
// at the presentation boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure.
type Kind string

const (
	InvalidFormat        Kind = "invalid_format"
	InvalidTimeAlignment Kind = "invalid_time_alignment"
	InvalidDuration      Kind = "invalid_duration"
	PastDate             Kind = "past_date"
	InvalidIdentifier    Kind = "invalid_identifier"
	StudentNotFound      Kind = "student_not_found"
	CanteenNotFound      Kind = "canteen_not_found"
	OutsideWorkingHours  Kind = "outside_working_hours"
	StudentDoubleBooked  Kind = "student_double_booked"
	CanteenFull          Kind = "canteen_full"
	ReservationNotFound  Kind = "reservation_not_found"
	NotOwner             Kind = "not_owner"
	AlreadyCancelled     Kind = "already_cancelled"
	Forbidden            Kind = "forbidden"
	BadRequest           Kind = "bad_request"
	Conflict             Kind = "conflict"
)

// Error is a domain error tagged with its Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, apperr.New(CanteenFull, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or "" if err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidFormat, InvalidTimeAlignment, InvalidDuration, PastDate, InvalidIdentifier,
		OutsideWorkingHours, StudentDoubleBooked, CanteenFull, AlreadyCancelled, BadRequest:
		return http.StatusBadRequest
	case Forbidden, NotOwner:
		return http.StatusForbidden
	case StudentNotFound, CanteenNotFound, ReservationNotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that is safe to show to clients.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "An error occurred while processing your request."
}
