package model

import (
	"errors"
	"fmt"
)

var (
	ErrUnresolvableParticipant = errors.New("participant cannot be resolved to a community")
	ErrNoStepsConfigured       = errors.New("no onboarding steps configured for community")
	ErrUnhandledAction         = errors.New("action is not handled at this time")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrPresentationMismatch    = errors.New("next step requires a form this channel cannot show")
	ErrRecordConflict          = errors.New("record was modified concurrently")
	ErrNoRecord                = errors.New("no onboarding record exists")
)

// FieldError is a field-scoped validation failure. Field errors are
// collected across a submission, never short-circuited, so the participant
// sees every problem at once.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewFieldError builds a FieldError with a formatted message.
func NewFieldError(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}
