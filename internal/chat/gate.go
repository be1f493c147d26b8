// Package chat implements appointment-gated conversations and messages.
package chat

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"swasthyaconnect-server/internal/models"
)

// Caller identifies the authenticated user performing a chat action.
type Caller struct {
	ID   string
	Role models.Role
}

// Gate decides whether a caller may use the chat of an appointment.
// Every check reads the current appointment, so a status change applies to the next call.
type Gate struct {
	db *gorm.DB
}

// NewGate creates a gate over db.
func NewGate(db *gorm.DB) *Gate {
	return &Gate{db: db}
}

// AuthorizeAppointment checks, in order: the appointment exists, the caller is its doctor
// or patient, and its status is confirmed.
func (g *Gate) AuthorizeAppointment(ctx context.Context, caller Caller, appointmentID string) (*models.Appointment, error) {
	appt, err := g.loadAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.HasParty(caller.ID) {
		return nil, ErrNotParticipant
	}
	if appt.Status != models.StatusConfirmed {
		return nil, &NotAvailableError{Status: appt.Status}
	}
	return appt, nil
}

// AuthorizeConversation runs the same checks starting from a conversation id.
// Party membership is checked against the conversation's own doctor and patient references.
func (g *Gate) AuthorizeConversation(ctx context.Context, caller Caller, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := g.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if caller.ID == "" || (caller.ID != conv.DoctorID && caller.ID != conv.PatientID) {
		return nil, ErrNotParticipant
	}

	appt, err := g.loadAppointment(ctx, conv.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.StatusConfirmed {
		return nil, &NotAvailableError{Status: appt.Status}
	}
	conv.Appointment = appt
	return &conv, nil
}

func (g *Gate) loadAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	if err := g.db.WithContext(ctx).First(&appt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return &appt, nil
}

// partyRole is the role userID plays in conv. The caller must already be a party.
func partyRole(conv *models.Conversation, userID string) models.Role {
	if userID == conv.DoctorID {
		return models.RoleDoctor
	}
	return models.RolePatient
}

func otherRole(role models.Role) models.Role {
	if role == models.RoleDoctor {
		return models.RolePatient
	}
	return models.RoleDoctor
}
