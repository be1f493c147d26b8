package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"swasthyaconnect-server/internal/middleware"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/utils"
)

// UserHandler handles user-related requests (typically admin operations).
type UserHandler struct {
	DB *gorm.DB
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{DB: db}
}

func sanitizeAll(users []models.User) []models.UserSanitized {
	out := make([]models.UserSanitized, len(users))
	for i := range users {
		out[i] = users[i].Sanitize()
	}
	return out
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FirstName          string  `json:"firstName" binding:"required"`
	LastName           string  `json:"lastName" binding:"required"`
	Email              string  `json:"email" binding:"required,email"`
	Password           string  `json:"password" binding:"required,min=8"`
	Role               string  `json:"role" binding:"required,oneof=patient doctor admin"`
	PhoneNumber        string  `json:"phoneNumber" binding:"omitempty,e164"`
	Specialization     string  `json:"specialization" binding:"required_if=Role doctor"`
	RegistrationNumber string  `json:"registrationNumber"`
	Fee                float64 `json:"fee" binding:"gte=0"`
	Age                int     `json:"age" binding:"gte=0,lte=150"`
	City               string  `json:"city"`
}

// CreateUser handles creating a new user (admin). Accounts created here are already verified.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user := models.User{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Email:              normalizeEmail(req.Email),
		Role:               models.Role(req.Role),
		PhoneNumber:        req.PhoneNumber,
		IsVerified:         true,
		Specialization:     req.Specialization,
		RegistrationNumber: req.RegistrationNumber,
		Fee:                req.Fee,
		Age:                req.Age,
		City:               req.City,
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password: "+err.Error())
		return
	}

	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Conflict(c, "User with this email already exists")
			return
		}
		utils.InternalServerError(c, "Failed to create user: "+err.Error())
		return
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers handles fetching all users (admin). An optional role query narrows the list.
func (h *UserHandler) GetUsers(c *gin.Context) {
	query := h.DB.Order("created_at desc")
	if role := strings.ToLower(c.Query("role")); role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch users: "+err.Error())
		return
	}

	utils.Success(c, "Users fetched successfully", sanitizeAll(users))
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user by an admin.
// Password should be updated via a separate "change password" endpoint.
type UpdateUserRequest struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email" binding:"omitempty,email"`
	Role       string `json:"role" binding:"omitempty,oneof=patient doctor admin"`
	IsVerified *bool  `json:"isVerified"`
}

// UpdateUser handles updating a user by ID (admin).
func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID := c.Param("id")

	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		utils.NotFound(c, "User not found")
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if email := normalizeEmail(req.Email); email != "" && email != user.Email {
		user.Email = email
	}
	if req.Role != "" {
		user.Role = models.Role(req.Role)
	}
	if req.IsVerified != nil {
		user.IsVerified = *req.IsVerified
	}

	if err := h.DB.Save(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Conflict(c, "New email is already in use")
			return
		}
		utils.InternalServerError(c, "Failed to update user: "+err.Error())
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser handles deleting a user by ID (admin). It exists as a testing escape hatch:
// a user still referenced by appointments or reports cannot be deleted.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	var references int64
	if err := h.DB.Model(&models.Appointment{}).
		Where("patient_id = ? OR doctor_id = ?", userID, userID).
		Count(&references).Error; err != nil {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}
	if references > 0 {
		utils.Conflict(c, "User has appointments and cannot be deleted")
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			utils.Conflict(c, "User is still referenced and cannot be deleted")
			return
		}
		utils.InternalServerError(c, "Failed to delete user: "+err.Error())
		return
	}

	log.Warn().Str("user_id", userID).Msg("user deleted by admin")
	utils.Success(c, "User deleted successfully", nil)
}

// GetDoctors handles fetching all doctors, optionally filtered by specialization.
// This endpoint is used by patients when booking appointments.
func (h *UserHandler) GetDoctors(c *gin.Context) {
	query := h.DB.Where("role = ?", models.RoleDoctor).Order("first_name asc")
	if spec := strings.TrimSpace(c.Query("specialization")); spec != "" {
		query = query.Where("LOWER(specialization) = ?", strings.ToLower(spec))
	}

	var doctors []models.User
	if err := query.Find(&doctors).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch doctors: "+err.Error())
		return
	}

	utils.Success(c, "Doctors fetched successfully", sanitizeAll(doctors))
}

// GetDoctorPatients lists patients. Doctors see the patients who booked with them,
// admins see every patient.
func (h *UserHandler) GetDoctorPatients(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	userRole, _ := middleware.GetUserRoleFromContext(c)

	query := h.DB.Where("role = ?", models.RolePatient).Order("first_name asc")
	switch userRole {
	case models.RoleDoctor:
		query = query.Where("id IN (?)",
			h.DB.Model(&models.Appointment{}).Select("patient_id").Where("doctor_id = ?", userID))
	case models.RoleAdmin:
	default:
		utils.Forbidden(c, "Only doctors and admins can view patient lists")
		return
	}

	var patients []models.User
	if err := query.Find(&patients).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch patients: "+err.Error())
		return
	}

	utils.Success(c, "Patients fetched successfully", sanitizeAll(patients))
}
