package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"swasthyaconnect-server/internal/middleware"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/notify"
	"swasthyaconnect-server/internal/realtime"
	"swasthyaconnect-server/internal/utils"
)

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	DB       *gorm.DB
	Notifier *notify.Notifier
	Hub      *realtime.Hub
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(db *gorm.DB, notifier *notify.Notifier, hub *realtime.Hub) *AppointmentHandler {
	return &AppointmentHandler{DB: db, Notifier: notifier, Hub: hub}
}

func appointmentViews(appointments []models.Appointment) []models.AppointmentView {
	views := make([]models.AppointmentView, len(appointments))
	for i := range appointments {
		views[i] = appointments[i].View()
	}
	return views
}

// CreateAppointmentRequest represents the request body for creating an appointment.
// The patient is always the caller.
type CreateAppointmentRequest struct {
	DoctorID string `json:"doctorId" binding:"required,uuid"`
	Date     string `json:"date" binding:"required"`
	TimeSlot string `json:"timeSlot" binding:"required,timeslot"`
	Symptoms string `json:"symptoms" binding:"required,max=2000"`
}

// CreateAppointment books a pending appointment for the calling patient.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patientID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "Patient ID not found in token")
		return
	}

	date, err := utils.ParseDate(req.Date)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if date.Before(today) {
		utils.BadRequest(c, "Appointment date cannot be in the past.")
		return
	}

	// Verify doctor exists and is a doctor
	var doctor models.User
	if err := h.DB.Where("id = ? AND role = ?", req.DoctorID, models.RoleDoctor).First(&doctor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Doctor not found or user is not a doctor")
		} else {
			utils.InternalServerError(c, "Database error verifying doctor: "+err.Error())
		}
		return
	}

	var patient models.User
	if err := h.DB.First(&patient, "id = ?", patientID).Error; err != nil {
		utils.NotFound(c, "Patient not found")
		return
	}

	appointment := models.Appointment{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Date:      date,
		TimeSlot:  strings.TrimSpace(req.TimeSlot),
		Symptoms:  strings.TrimSpace(req.Symptoms),
		Status:    models.StatusPending,
	}

	if err := h.DB.Create(&appointment).Error; err != nil {
		utils.InternalServerError(c, "Failed to create appointment: "+err.Error())
		return
	}
	appointment.Patient = &patient
	appointment.Doctor = &doctor

	h.notifyUser(c.Request.Context(), doctor.ID, realtime.Notification{
		Type:    "appointment",
		Title:   "New appointment request",
		Message: patient.FullName() + " requested " + appointment.Date.Format("2006-01-02") + " at " + appointment.TimeSlot,
		Data:    appointment.View(),
	})

	utils.Created(c, "Appointment created successfully", appointment.View())
}

// GetAppointmentsForUser handles fetching appointments for the logged-in user.
// Patients and doctors see their own, admins see all. An optional status query filters the list.
func (h *AppointmentHandler) GetAppointmentsForUser(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	userRole, _ := middleware.GetUserRoleFromContext(c)

	query := h.DB.Preload("Patient").Preload("Doctor").Order("date desc").Order("created_at desc")

	switch userRole {
	case models.RolePatient:
		query = query.Where("patient_id = ?", userID)
	case models.RoleDoctor:
		query = query.Where("doctor_id = ?", userID)
	case models.RoleAdmin:
	default:
		utils.Forbidden(c, "User role not permitted to view appointments")
		return
	}

	if status := models.AppointmentStatus(strings.ToLower(c.Query("status"))); status != "" {
		if !status.Valid() {
			utils.BadRequest(c, "Invalid status filter")
			return
		}
		query = query.Where("status = ?", status)
	}

	var appointments []models.Appointment
	if err := query.Find(&appointments).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch appointments: "+err.Error())
		return
	}

	utils.Success(c, "Appointments fetched successfully", appointmentViews(appointments))
}

// loadAppointment answers 404/500 itself and returns nil in that case.
func (h *AppointmentHandler) loadAppointment(c *gin.Context, preload bool) *models.Appointment {
	query := h.DB
	if preload {
		query = query.Preload("Patient").Preload("Doctor")
	}

	var appointment models.Appointment
	if err := query.First(&appointment, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Appointment not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil
	}
	return &appointment
}

// GetAppointmentByID handles fetching a single appointment by its ID.
// Accessible by involved patient, doctor, or an admin.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	appointment := h.loadAppointment(c, true)
	if appointment == nil {
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	userRole, _ := middleware.GetUserRoleFromContext(c)
	if userRole != models.RoleAdmin && !appointment.HasParty(userID) {
		utils.Forbidden(c, "You are not authorized to view this appointment")
		return
	}

	utils.Success(c, "Appointment fetched successfully", appointment.View())
}

// UpdateAppointmentStatusRequest represents the request body for updating an appointment's status.
type UpdateAppointmentStatusRequest struct {
	Status models.AppointmentStatus `json:"status" binding:"required,oneof=confirmed rejected completed cancelled"`
}

// canChangeStatus applies the status rules:
//   - admin: any status
//   - the appointment's doctor: confirmed, rejected, completed, cancelled
//   - the appointment's patient: cancel a pending or confirmed appointment only
func canChangeStatus(userID string, role models.Role, appt *models.Appointment, next models.AppointmentStatus) (bool, string) {
	switch {
	case role == models.RoleAdmin:
		return true, ""
	case role == models.RoleDoctor && userID == appt.DoctorID:
		return true, ""
	case role == models.RolePatient && userID == appt.PatientID:
		if next != models.StatusCancelled {
			return false, "Patients can only cancel appointments."
		}
		if appt.Status != models.StatusPending && appt.Status != models.StatusConfirmed {
			return false, "Only pending or confirmed appointments can be cancelled."
		}
		return true, ""
	}
	return false, "You are not authorized to update this appointment's status."
}

// UpdateAppointmentStatus moves an appointment to a new status and notifies the patient.
// A confirmed appointment unlocks its chat on the next request; any other status locks it.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	var req UpdateAppointmentStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appointment := h.loadAppointment(c, true)
	if appointment == nil {
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	userRole, _ := middleware.GetUserRoleFromContext(c)
	if ok, reason := canChangeStatus(userID, userRole, appointment, req.Status); !ok {
		utils.Forbidden(c, reason)
		return
	}

	if appointment.Status == req.Status {
		utils.Success(c, "Appointment status unchanged", appointment.View())
		return
	}

	previous := appointment.Status
	if err := h.DB.Model(appointment).Update("status", req.Status).Error; err != nil {
		utils.InternalServerError(c, "Failed to update appointment status: "+err.Error())
		return
	}
	appointment.Status = req.Status

	log.Info().
		Str("appointment_id", appointment.ID).
		Str("from", string(previous)).
		Str("to", string(req.Status)).
		Str("by", userID).
		Msg("appointment status changed")

	h.announceStatus(c.Request.Context(), appointment)

	utils.Success(c, "Appointment status updated successfully", appointment.View())
}

// announceStatus sends the patient a WhatsApp, an email and a realtime notice.
// None of these can fail the status change.
func (h *AppointmentHandler) announceStatus(ctx context.Context, appointment *models.Appointment) {
	if appointment.Patient == nil || appointment.Doctor == nil {
		return
	}

	if err := h.Notifier.AppointmentStatusChanged(ctx, appointment.Patient, appointment.Doctor, appointment); err != nil {
		log.Error().Err(err).Str("appointment_id", appointment.ID).Msg("failed to deliver appointment status notice")
	}

	h.notifyUser(ctx, appointment.PatientID, realtime.Notification{
		Type:    "appointment",
		Title:   "Appointment " + string(appointment.Status),
		Message: notify.AppointmentStatusText(appointment.Doctor, appointment),
		Data:    appointment.View(),
	})
}

func (h *AppointmentHandler) notifyUser(ctx context.Context, userID string, n realtime.Notification) {
	if h.Hub == nil {
		return
	}
	if err := h.Hub.Notify(ctx, userID, n); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to publish notification")
	}
}

// DeleteAppointment removes an appointment. Only the patient who booked it may do so,
// and only while no conversation has been opened for it.
func (h *AppointmentHandler) DeleteAppointment(c *gin.Context) {
	appointment := h.loadAppointment(c, false)
	if appointment == nil {
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	if userID != appointment.PatientID {
		utils.Forbidden(c, "Only the patient who booked this appointment can delete it")
		return
	}

	var conversations int64
	if err := h.DB.Model(&models.Conversation{}).Where("appointment_id = ?", appointment.ID).Count(&conversations).Error; err != nil {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}
	if conversations > 0 {
		utils.Conflict(c, "Appointment has a conversation and cannot be deleted, cancel it instead")
		return
	}

	if err := h.DB.Delete(&models.Appointment{}, "id = ?", appointment.ID).Error; err != nil {
		utils.InternalServerError(c, "Failed to delete appointment: "+err.Error())
		return
	}

	utils.Success(c, "Appointment deleted successfully", nil)
}
