package scheduling

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Error kinds. Every business failure wraps exactly one of them.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("slot conflict")
	ErrState      = errors.New("illegal state transition")
)

// Error is a business-rule failure with a machine-checkable code.
type Error struct {
	Kind    error
	Code    string
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// Is lets errors.Is match two *Error values by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind error, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func validationError(code, format string, args ...any) *Error {
	return newError(ErrValidation, code, format, args...)
}

func stateError(code, format string, args ...any) *Error {
	return newError(ErrState, code, format, args...)
}

var (
	ErrPatientNotFound         = newError(ErrNotFound, "patient_not_found", "patient not found")
	ErrServiceNotFound         = newError(ErrNotFound, "service_not_found", "service not found")
	ErrPractitionerNotFound    = newError(ErrNotFound, "practitioner_not_found", "practitioner not found")
	ErrAppointmentNotFound     = newError(ErrNotFound, "appointment_not_found", "appointment not found")
	ErrTreatmentNotFound       = newError(ErrNotFound, "treatment_not_found", "treatment not found")
	ErrPreRegistrationNotFound = newError(ErrNotFound, "pre_registration_not_found", "pre-registration not found")
	ErrFirstVisitNotFound      = newError(ErrNotFound, "first_visit_not_found", "treatment has no initial appointment")

	ErrSlotTaken       = newError(ErrConflict, "slot_taken", "the practitioner already has an appointment at that time")
	ErrSlotBeingBooked = newError(ErrConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")

	// ErrTreatmentFull is returned by the store when the completed counter is
	// already at the planned total.
	ErrTreatmentFull = stateError("treatment_full", "treatment already has every planned visit completed")

	ErrTotalBelowCompleted = validationError("total_below_completed", "planned visits cannot be fewer than the visits already completed")

	ErrVisitAlreadyCounted = stateError("visit_already_counted", "appointment was already counted toward the treatment")
	ErrAlreadyConfirmed    = stateError("pre_registration_confirmed", "pre-registration was already confirmed")
)

// asValidationError turns ozzo field errors into a single *Error.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return &Error{Kind: ErrValidation, Code: "invalid_request", Message: err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for field, ferr := range verrs {
		fields[field] = ferr.Error()
	}
	return &Error{Kind: ErrValidation, Code: "invalid_request", Message: verrs.Error(), Fields: fields}
}
