package service

import "fmt"

// ValidationError reports malformed or out-of-range input. The request never
// reached the booking rules.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotEligibleError reports a well-formed request rejected by a booking rule:
// past occurrence, advance-notice window, inactive slot, expired enrollment.
type NotEligibleError struct {
	Reason string
}

func (e *NotEligibleError) Error() string {
	return e.Reason
}

// ForbiddenError reports an action the actor is not allowed to perform, such
// as a student cancelling inside the notice window.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// SlotBusyError is returned when a slot cannot be deactivated because booked
// future occurrences exist and the caller did not ask for a cascade.
type SlotBusyError struct {
	FutureBookings int
}

func (e *SlotBusyError) Error() string {
	return fmt.Sprintf("slot has %d future bookings; pass force to cancel them", e.FutureBookings)
}
