package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// User represents a patient, doctor or admin account.
// Doctor-only and patient-only profile fields are left empty for the other roles.
type User struct {
	BaseModel
	Email                   string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password                string     `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	FirstName               string     `gorm:"size:100" json:"firstName"`
	LastName                string     `gorm:"size:100" json:"lastName"`
	Role                    Role       `gorm:"size:20;not null;index" json:"role"`
	PhoneNumber             string     `gorm:"size:32" json:"phoneNumber,omitempty"`
	IsVerified              bool       `gorm:"default:false" json:"isVerified"`
	VerificationToken       string     `gorm:"size:64;index" json:"-"`
	VerificationTokenExpiry *time.Time `json:"-"`

	// Doctor profile
	Specialization     string  `gorm:"size:100;index" json:"specialization,omitempty"`
	RegistrationNumber string  `gorm:"size:64" json:"registrationNumber,omitempty"`
	Fee                float64 `json:"fee,omitempty"`

	// Patient profile
	Age  int    `json:"age,omitempty"`
	City string `gorm:"size:100" json:"city,omitempty"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FirstName          string    `json:"firstName"`
	LastName           string    `json:"lastName"`
	Role               Role      `json:"role"`
	PhoneNumber        string    `json:"phoneNumber,omitempty"`
	IsVerified         bool      `json:"isVerified"`
	Specialization     string    `json:"specialization,omitempty"`
	RegistrationNumber string    `json:"registrationNumber,omitempty"`
	Fee                float64   `json:"fee,omitempty"`
	Age                int       `json:"age,omitempty"`
	City               string    `json:"city,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// PartySummary is the slim view of a user embedded in chat and appointment listings.
type PartySummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// VerificationValid reports whether token matches the stored, unexpired verification token.
func (u *User) VerificationValid(token string, now time.Time) bool {
	if u.VerificationToken == "" || token != u.VerificationToken {
		return false
	}
	return u.VerificationTokenExpiry != nil && now.Before(*u.VerificationTokenExpiry)
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:                 u.ID,
		Email:              u.Email,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Role:               u.Role,
		PhoneNumber:        u.PhoneNumber,
		IsVerified:         u.IsVerified,
		Specialization:     u.Specialization,
		RegistrationNumber: u.RegistrationNumber,
		Fee:                u.Fee,
		Age:                u.Age,
		City:               u.City,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

// Summary returns the party view used in listings, or nil for an unloaded user.
func (u *User) Summary() *PartySummary {
	if u == nil || u.ID == "" {
		return nil
	}
	return &PartySummary{ID: u.ID, Name: u.FullName(), Specialization: u.Specialization}
}
