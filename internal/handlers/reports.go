package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"swasthyaconnect-server/internal/middleware"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/notify"
	"swasthyaconnect-server/internal/realtime"
	"swasthyaconnect-server/internal/storage"
	"swasthyaconnect-server/internal/utils"
)

const reportCategory = "reports"

// ReportHandler handles medical report uploads and downloads.
type ReportHandler struct {
	DB       *gorm.DB
	Store    *storage.LocalStore
	Notifier *notify.Notifier
	Hub      *realtime.Hub
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(db *gorm.DB, store *storage.LocalStore, notifier *notify.Notifier, hub *realtime.Hub) *ReportHandler {
	return &ReportHandler{DB: db, Store: store, Notifier: notifier, Hub: hub}
}

var reportTypes = map[models.ReportType]bool{
	models.ReportTypeLabResult:        true,
	models.ReportTypePrescription:     true,
	models.ReportTypeImagingReport:    true,
	models.ReportTypeVaccination:      true,
	models.ReportTypeDischargeSummary: true,
	models.ReportTypeOther:            true,
}

// canAccessPatient reports whether the caller may read or add reports for patientID:
// the patient, a doctor who has an appointment with them, or an admin.
func (h *ReportHandler) canAccessPatient(c *gin.Context, patientID string) (bool, error) {
	userID, _ := middleware.GetUserIDFromContext(c)
	role, _ := middleware.GetUserRoleFromContext(c)

	switch role {
	case models.RoleAdmin:
		return true, nil
	case models.RolePatient:
		return userID == patientID, nil
	case models.RoleDoctor:
		var count int64
		err := h.DB.Model(&models.Appointment{}).
			Where("doctor_id = ? AND patient_id = ?", userID, patientID).
			Count(&count).Error
		return count > 0, err
	}
	return false, nil
}

// UploadReport stores a report file for a patient.
// POST /api/reports (multipart: report, title, description, reportType, patientId, appointmentId)
func (h *ReportHandler) UploadReport(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)
	role, _ := middleware.GetUserRoleFromContext(c)

	patientID := strings.TrimSpace(c.PostForm("patientId"))
	if role == models.RolePatient {
		if patientID != "" && patientID != userID {
			utils.Forbidden(c, "Patients can only upload their own reports")
			return
		}
		patientID = userID
	}
	if patientID == "" {
		utils.BadRequest(c, "patientId is required")
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		utils.BadRequest(c, "title is required")
		return
	}
	reportType := models.ReportType(c.DefaultPostForm("reportType", string(models.ReportTypeOther)))
	if !reportTypes[reportType] {
		utils.BadRequest(c, "Invalid reportType")
		return
	}

	var patient models.User
	if err := h.DB.Where("id = ? AND role = ?", patientID, models.RolePatient).First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Patient not found")
		} else {
			utils.InternalServerError(c, "Database error verifying patient: "+err.Error())
		}
		return
	}

	allowed, err := h.canAccessPatient(c, patientID)
	if err != nil {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}
	if !allowed {
		utils.Forbidden(c, "You are not authorized to add reports for this patient")
		return
	}

	var appointmentID *string
	if id := strings.TrimSpace(c.PostForm("appointmentId")); id != "" {
		var appt models.Appointment
		if err := h.DB.First(&appt, "id = ? AND patient_id = ?", id, patientID).Error; err != nil {
			utils.BadRequest(c, "appointmentId does not belong to this patient")
			return
		}
		appointmentID = &appt.ID
	}

	fh, err := c.FormFile("report")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			respondChatError(c, storage.ErrNoFile)
			return
		}
		utils.BadRequest(c, "Invalid multipart form: "+err.Error())
		return
	}

	file, err := h.Store.Save(reportCategory, fh)
	if err != nil {
		respondChatError(c, err)
		return
	}

	report := models.MedicalReport{
		BaseModel:     models.BaseModel{ID: models.NewID()},
		PatientID:     patientID,
		UploadedByID:  userID,
		UploadedBy:    role,
		AppointmentID: appointmentID,
		ReportType:    reportType,
		Title:         title,
		Description:   strings.TrimSpace(c.PostForm("description")),
		FileName:      file.OriginalName,
		FileType:      file.ContentType,
		FileSize:      file.Size,
		FilePath:      file.Path,
	}
	// Reports are not served statically; the URL points at the authorized download route.
	report.FileURL = "/api/reports/" + report.ID + "/download"

	if err := h.DB.Create(&report).Error; err != nil {
		if rmErr := h.Store.Remove(file.Path); rmErr != nil {
			log.Error().Err(rmErr).Str("path", file.Path).Msg("failed to remove orphaned report file")
		}
		utils.InternalServerError(c, "Failed to save report: "+err.Error())
		return
	}

	if err := h.Notifier.ReportUploaded(c.Request.Context(), &patient, &report); err != nil {
		log.Error().Err(err).Str("report_id", report.ID).Msg("failed to send report notice")
	}
	if h.Hub != nil && userID != patientID {
		n := realtime.Notification{Type: "report", Title: "New medical report", Message: report.Title, Data: report}
		if err := h.Hub.Notify(c.Request.Context(), patientID, n); err != nil {
			log.Warn().Err(err).Str("user_id", patientID).Msg("failed to publish notification")
		}
	}

	utils.Created(c, "Report uploaded successfully", report)
}

// GetReportsForPatient lists a patient's reports, newest first.
// GET /api/reports/patient/:patientId
func (h *ReportHandler) GetReportsForPatient(c *gin.Context) {
	patientID := c.Param("patientId")

	allowed, err := h.canAccessPatient(c, patientID)
	if err != nil {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}
	if !allowed {
		utils.Forbidden(c, "You are not authorized to view these medical reports")
		return
	}

	var reports []models.MedicalReport
	if err := h.DB.Where("patient_id = ?", patientID).Order("created_at desc").Find(&reports).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch reports: "+err.Error())
		return
	}

	utils.Success(c, "Reports fetched successfully", reports)
}

// loadReport answers 404/403/500 itself and returns nil in those cases.
func (h *ReportHandler) loadReport(c *gin.Context) *models.MedicalReport {
	var report models.MedicalReport
	if err := h.DB.First(&report, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Report not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil
	}

	allowed, err := h.canAccessPatient(c, report.PatientID)
	if err != nil {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return nil
	}
	if !allowed {
		utils.Forbidden(c, "You are not authorized to view this medical report")
		return nil
	}
	return &report
}

// GetReportByID returns report metadata.
// GET /api/reports/:id
func (h *ReportHandler) GetReportByID(c *gin.Context) {
	if report := h.loadReport(c); report != nil {
		utils.Success(c, "Report fetched successfully", report)
	}
}

// DownloadReport streams the stored file.
// GET /api/reports/:id/download
func (h *ReportHandler) DownloadReport(c *gin.Context) {
	report := h.loadReport(c)
	if report == nil {
		return
	}

	f, err := h.Store.Open(report.FilePath)
	if err != nil {
		log.Error().Err(err).Str("report_id", report.ID).Msg("report file missing")
		utils.NotFound(c, "Report file not found")
		return
	}
	defer f.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": report.FileName})
	c.DataFromReader(http.StatusOK, report.FileSize, report.FileType, f, map[string]string{
		"Content-Disposition": disposition,
	})
}
