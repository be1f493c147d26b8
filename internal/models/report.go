package models

// ReportType represents the kind of medical report
type ReportType string

const (
	ReportTypeLabResult        ReportType = "LabResult"
	ReportTypePrescription     ReportType = "Prescription"
	ReportTypeImagingReport    ReportType = "ImagingReport"
	ReportTypeVaccination      ReportType = "VaccinationRecord"
	ReportTypeDischargeSummary ReportType = "DischargeSummary"
	ReportTypeOther            ReportType = "Other"
)

// MedicalReport is an uploaded report file belonging to a patient.
// The file itself lives in the upload store; only its location is kept here.
type MedicalReport struct {
	BaseModel
	PatientID     string     `gorm:"size:36;index;not null" json:"patientId"`
	UploadedByID  string     `gorm:"size:36;index;not null" json:"uploadedById"`
	UploadedBy    Role       `gorm:"size:20;not null" json:"uploadedByRole"`
	AppointmentID *string    `gorm:"size:36;index" json:"appointmentId,omitempty"`
	ReportType    ReportType `gorm:"size:50;default:'Other'" json:"reportType"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	FileName      string     `gorm:"size:255;not null" json:"fileName"` // Original name of the file
	FileType      string     `gorm:"size:100;not null" json:"fileType"` // MIME type of the file
	FileSize      int64      `json:"fileSize"`
	FilePath      string     `gorm:"size:512;not null" json:"-"`
	FileURL       string     `gorm:"size:512" json:"fileUrl"`

	// Relations
	Patient *User `gorm:"foreignKey:PatientID" json:"-"`
}
