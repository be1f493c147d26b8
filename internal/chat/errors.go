package chat

import (
	"errors"
	"fmt"

	"swasthyaconnect-server/internal/models"
)

// Lookup and access errors
var (
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("you are not a participant in this appointment")
	ErrMessageNotFound      = errors.New("message not found")
)

// Message errors
var (
	ErrEmptyMessage   = errors.New("message text or attachment required")
	ErrMessageTooLong = fmt.Errorf("message text exceeds %d characters", MaxMessageLength)
)

// NotAvailableError is returned when the caller is a party but the appointment is not confirmed.
// The status is part of the message so clients can explain why chat is locked.
type NotAvailableError struct {
	Status models.AppointmentStatus
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("chat is only available for confirmed appointments (current status: %s)", e.Status)
}

// IsNotAvailable reports whether err is a *NotAvailableError.
func IsNotAvailable(err error) bool {
	var target *NotAvailableError
	return errors.As(err, &target)
}
