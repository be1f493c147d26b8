package models

import (
	"time"
)

// UnreadCount holds the per-role unread counters of a conversation.
type UnreadCount struct {
	Doctor  int `gorm:"not null;default:0" json:"doctor"`
	Patient int `gorm:"not null;default:0" json:"patient"`
}

// For returns the counter that belongs to role.
func (u UnreadCount) For(role Role) int {
	if role == RoleDoctor {
		return u.Doctor
	}
	return u.Patient
}

// Conversation is the chat thread of exactly one appointment.
// DoctorID and PatientID are copied from the appointment so party checks need no join.
type Conversation struct {
	BaseModel
	AppointmentID string      `gorm:"size:36;uniqueIndex;not null" json:"appointmentId"`
	DoctorID      string      `gorm:"size:36;index;not null" json:"doctorId"`
	PatientID     string      `gorm:"size:36;index;not null" json:"patientId"`
	LastMessage   string      `gorm:"type:text" json:"lastMessage"`
	LastMessageAt *time.Time  `gorm:"index" json:"lastMessageAt"`
	UnreadCount   UnreadCount `gorm:"embedded;embeddedPrefix:unread_" json:"unreadCount"`

	// Relations
	Appointment *Appointment `gorm:"foreignKey:AppointmentID" json:"-"`
	Doctor      *User        `gorm:"foreignKey:DoctorID" json:"-"`
	Patient     *User        `gorm:"foreignKey:PatientID" json:"-"`
}

// UnreadColumn is the column holding role's unread counter.
func UnreadColumn(role Role) string {
	if role == RoleDoctor {
		return "unread_doctor"
	}
	return "unread_patient"
}

// ConversationAppointment is the slice of the appointment shown next to a conversation.
type ConversationAppointment struct {
	ID       string            `json:"id"`
	Date     time.Time         `json:"date"`
	TimeSlot string            `json:"timeSlot"`
	Status   AppointmentStatus `json:"status"`
}

// ConversationView is the API shape of a conversation with party names populated.
type ConversationView struct {
	Conversation
	Doctor      *PartySummary            `json:"doctor,omitempty"`
	Patient     *PartySummary            `json:"patient,omitempty"`
	Appointment *ConversationAppointment `json:"appointment,omitempty"`
	// Unread is the viewer's own counter.
	Unread int `json:"unread"`
}

// View builds the API shape for viewer. Relations that were not preloaded are omitted.
func (c *Conversation) View(viewer Role) ConversationView {
	v := ConversationView{
		Conversation: *c,
		Doctor:       c.Doctor.Summary(),
		Patient:      c.Patient.Summary(),
		Unread:       c.UnreadCount.For(viewer),
	}
	if c.Appointment != nil {
		v.Appointment = &ConversationAppointment{
			ID:       c.Appointment.ID,
			Date:     c.Appointment.Date,
			TimeSlot: c.Appointment.TimeSlot,
			Status:   c.Appointment.Status,
		}
	}
	return v
}
