package models

import (
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusRejected  AppointmentStatus = "rejected"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Appointment represents a requested consultation slot between one patient and one doctor.
// TimeSlot keeps the string the patient picked ("10:30" or "10:30 AM").
type Appointment struct {
	BaseModel
	PatientID string            `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID  string            `gorm:"size:36;index;not null" json:"doctorId"`
	Date      time.Time         `gorm:"index" json:"date"`
	TimeSlot  string            `gorm:"size:16;not null" json:"timeSlot"`
	Symptoms  string            `gorm:"type:text" json:"symptoms"`
	Status    AppointmentStatus `gorm:"size:20;default:'pending';index" json:"status"`

	// Relations
	Patient *User `gorm:"foreignKey:PatientID" json:"-"`
	Doctor  *User `gorm:"foreignKey:DoctorID" json:"-"`
}

// HasParty reports whether userID is the patient or the doctor on the appointment.
func (a *Appointment) HasParty(userID string) bool {
	return userID != "" && (userID == a.PatientID || userID == a.DoctorID)
}

// AppointmentView is the API shape of an appointment with party names resolved.
type AppointmentView struct {
	Appointment
	Patient *PartySummary `json:"patient,omitempty"`
	Doctor  *PartySummary `json:"doctor,omitempty"`
}

// View builds the API shape. Relations that were not preloaded are omitted.
func (a *Appointment) View() AppointmentView {
	return AppointmentView{
		Appointment: *a,
		Patient:     a.Patient.Summary(),
		Doctor:      a.Doctor.Summary(),
	}
}
