// Package testutil holds fixtures shared by package tests: an in-memory database,
// seeded users and appointments, and signed tokens.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"swasthyaconnect-server/internal/config"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/utils"
)

// NewTestDB opens a migrated in-memory SQLite database private to the test.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := models.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// One connection keeps the shared in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// NewConfig returns a config suitable for handler tests, with uploads under a temp dir.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                      "0",
		Origin:                    "http://localhost:5173",
		Environment:               "test",
		JWTSecret:                 "test_jwt_secret",
		JWTRefreshSecret:          "test_refresh_secret",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 24,
		VerificationTokenExpiry:   24,
		AuthLookupTimeout:         2 * time.Second,
		AppURL:                    "http://localhost:5000",
		Uploads: config.UploadConfig{
			Dir:          t.TempDir(),
			PublicPrefix: "/uploads",
			MaxBytes:     5 << 20,
		},
	}
}

// CreateUser inserts a verified user with the given role and password "password123".
func CreateUser(t *testing.T, db *gorm.DB, role models.Role, firstName string) *models.User {
	t.Helper()

	user := &models.User{
		Email:      fmt.Sprintf("%s-%s@example.com", firstName, uuid.NewString()[:8]),
		FirstName:  firstName,
		LastName:   "Test",
		Role:       role,
		IsVerified: true,
	}
	if role == models.RoleDoctor {
		user.Specialization = "General Medicine"
	}
	if err := user.SetPassword("password123"); err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// CreateAppointment inserts an appointment between patient and doctor with the given status.
func CreateAppointment(t *testing.T, db *gorm.DB, patient, doctor *models.User, status models.AppointmentStatus) *models.Appointment {
	t.Helper()

	appt := &models.Appointment{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Date:      time.Now().AddDate(0, 0, 1).Truncate(24 * time.Hour),
		TimeSlot:  "10:30",
		Symptoms:  "Headache",
		Status:    status,
	}
	if err := db.Create(appt).Error; err != nil {
		t.Fatalf("failed to create appointment: %v", err)
	}
	return appt
}

// SetAppointmentStatus changes an appointment's status in place.
func SetAppointmentStatus(t *testing.T, db *gorm.DB, appt *models.Appointment, status models.AppointmentStatus) {
	t.Helper()

	if err := db.Model(appt).Update("status", status).Error; err != nil {
		t.Fatalf("failed to update appointment status: %v", err)
	}
	appt.Status = status
}

// AccessToken signs an access token for user with cfg's secret.
func AccessToken(t *testing.T, cfg *config.Config, user *models.User) string {
	t.Helper()

	token, _, err := utils.GenerateTokens(user, cfg)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}
