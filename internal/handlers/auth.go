package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"swasthyaconnect-server/internal/config"
	"swasthyaconnect-server/internal/middleware"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/notify"
	"swasthyaconnect-server/internal/utils"
)

const refreshCookieName = "refresh_token"

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Notifier *notify.Notifier
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, notifier *notify.Notifier) *AuthHandler {
	return &AuthHandler{DB: db, Cfg: cfg, Notifier: notifier}
}

// RegisterRequest represents the request body for user registration.
type RegisterRequest struct {
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	Role        string `json:"role" binding:"required,oneof=patient doctor"`
	PhoneNumber string `json:"phoneNumber" binding:"omitempty,e164"`

	// Doctor profile
	Specialization     string  `json:"specialization" binding:"required_if=Role doctor"`
	RegistrationNumber string  `json:"registrationNumber" binding:"required_if=Role doctor"`
	Fee                float64 `json:"fee" binding:"gte=0"`

	// Patient profile
	Age  int    `json:"age" binding:"gte=0,lte=150"`
	City string `json:"city"`
}

// lookupContext bounds the user lookups on the public auth routes so a slow database
// fails the request quickly instead of hanging it.
func (h *AuthHandler) lookupContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := h.Cfg.AuthLookupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

var errLookupTimeout = errors.New("database lookup timed out")

// findUserByEmail returns gorm.ErrRecordNotFound for unknown emails and errLookupTimeout
// when the database does not answer within the auth lookup timeout.
func (h *AuthHandler) findUserByEmail(c *gin.Context, email string) (*models.User, error) {
	ctx, cancel := h.lookupContext(c)
	defer cancel()

	var user models.User
	err := h.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Error().Err(err).Msg("user lookup timed out")
		return nil, errLookupTimeout
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *AuthHandler) newVerificationToken(user *models.User) {
	expiry := time.Now().Add(time.Duration(h.Cfg.VerificationTokenExpiry) * time.Hour)
	user.VerificationToken = strings.ReplaceAll(uuid.NewString(), "-", "")
	user.VerificationTokenExpiry = &expiry
}

func (h *AuthHandler) sendVerification(c *gin.Context, user *models.User) {
	if err := h.Notifier.VerificationEmail(c.Request.Context(), user, user.VerificationToken); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("failed to send verification email")
	}
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return // Error response handled by BindAndValidate
	}
	req.Email = normalizeEmail(req.Email)

	// Check if user already exists
	_, err := h.findUserByEmail(c, req.Email)
	switch {
	case err == nil:
		utils.Conflict(c, "User with this email already exists")
		return
	case errors.Is(err, errLookupTimeout):
		utils.ServiceUnavailable(c, "Database is not responding, please try again later")
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}

	user := models.User{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       req.Email,
		Role:        models.Role(req.Role),
		PhoneNumber: req.PhoneNumber,
	}
	if user.Role == models.RoleDoctor {
		user.Specialization = req.Specialization
		user.RegistrationNumber = req.RegistrationNumber
		user.Fee = req.Fee
	} else {
		user.Age = req.Age
		user.City = req.City
	}

	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password: "+err.Error())
		return
	}
	h.newVerificationToken(&user)

	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Conflict(c, "User with this email already exists")
			return
		}
		utils.InternalServerError(c, "Failed to create user: "+err.Error())
		return
	}

	h.sendVerification(c, &user)
	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")

	utils.Created(c, "User registered successfully. Please verify your email.", user.Sanitize())
}

// VerifyEmail marks the account owning the token as verified.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		utils.BadRequest(c, "Verification token is required")
		return
	}

	var user models.User
	if err := h.DB.Where("verification_token = ?", token).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.BadRequest(c, "Invalid or expired verification token")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	if !user.VerificationValid(token, time.Now()) {
		utils.BadRequest(c, "Invalid or expired verification token")
		return
	}

	err := h.DB.Model(&user).Updates(map[string]interface{}{
		"is_verified":               true,
		"verification_token":        "",
		"verification_token_expiry": nil,
	}).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to verify email: "+err.Error())
		return
	}

	utils.Success(c, "Email verified successfully", user.Sanitize())
}

// ResendVerificationRequest represents the request body for a new verification email.
type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResendVerification issues a fresh token for an unverified account.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req ResendVerificationRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, err := h.findUserByEmail(c, normalizeEmail(req.Email))
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Same answer as success so the endpoint does not reveal which emails exist.
		utils.Success(c, "If the account exists, a verification email has been sent", nil)
		return
	case errors.Is(err, errLookupTimeout):
		utils.ServiceUnavailable(c, "Database is not responding, please try again later")
		return
	case err != nil:
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}
	if user.IsVerified {
		utils.BadRequest(c, "Email is already verified")
		return
	}

	h.newVerificationToken(user)
	err = h.DB.Model(user).Updates(map[string]interface{}{
		"verification_token":        user.VerificationToken,
		"verification_token_expiry": user.VerificationTokenExpiry,
	}).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to update verification token: "+err.Error())
		return
	}

	h.sendVerification(c, user)
	utils.Success(c, "If the account exists, a verification email has been sent", nil)
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, err := h.findUserByEmail(c, normalizeEmail(req.Email))
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.Unauthorized(c, "Invalid email or password")
		return
	case errors.Is(err, errLookupTimeout):
		utils.ServiceUnavailable(c, "Database is not responding, please try again later")
		return
	case err != nil:
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}

	if !user.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	accessToken, refreshTokenString, err := h.issueTokens(c, h.DB, user)
	if err != nil {
		utils.InternalServerError(c, "Failed to issue tokens: "+err.Error())
		return
	}

	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenString, // Still include in response for backward compatibility
		User:         user.Sanitize(),
	})
}

// issueTokens signs a token pair, stores the refresh token and sets it as an HTTP-only cookie.
func (h *AuthHandler) issueTokens(c *gin.Context, db *gorm.DB, user *models.User) (string, string, error) {
	accessToken, refreshTokenString, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		return "", "", fmt.Errorf("generate tokens: %w", err)
	}

	refreshToken := models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshTokenString,
		ExpiresAt: time.Now().Add(time.Duration(h.Cfg.JWTRefreshExpirationHours) * time.Hour),
	}
	if err := db.Create(&refreshToken).Error; err != nil {
		return "", "", fmt.Errorf("store refresh token: %w", err)
	}

	h.setRefreshCookie(c, refreshTokenString, h.Cfg.JWTRefreshExpirationHours*60*60)
	return accessToken, refreshTokenString, nil
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetCookie(
		refreshCookieName,
		value,
		maxAge,
		"/",
		"",                     // Domain (empty means current domain)
		!h.Cfg.IsDevelopment(), // Secure (true in prod, false in dev)
		true,                   // HTTP only
	)
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshTokenResponse represents the response body for successful token refresh.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken handles refreshing an access token using a refresh token.
// The presented token is revoked and a new pair is issued in one transaction.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	// First try to get the refresh token from HTTP-only cookie
	presented, err := c.Cookie(refreshCookieName)

	// If no cookie, fall back to request body (for backward compatibility)
	if err != nil || presented == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		presented = req.RefreshToken
	}

	claims, err := utils.ValidateToken(presented, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token structure or signature: "+err.Error())
		return
	}

	var accessToken, refreshToken string
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var stored models.RefreshToken
		if err := tx.Preload("User").Where("token = ? AND user_id = ?", presented, claims.UserID).First(&stored).Error; err != nil {
			return err
		}
		if !stored.Active(time.Now()) || stored.User == nil {
			return gorm.ErrRecordNotFound
		}

		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND is_revoked = ?", stored.ID, false).
			Update("is_revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another request rotated this token first.
			return gorm.ErrRecordNotFound
		}

		var err error
		accessToken, refreshToken, err = h.issueTokens(c, tx, stored.User)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		} else {
			utils.InternalServerError(c, "Failed to refresh token: "+err.Error())
		}
		return
	}

	utils.Success(c, "Access token refreshed successfully", RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken, // Include for backward compatibility
	})
}

// LogoutRequest represents the request body for user logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the presented refresh token and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)
	token := req.RefreshToken
	if token == "" {
		token, _ = c.Cookie(refreshCookieName)
	}
	if token == "" {
		utils.BadRequest(c, "Refresh token is required")
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	err := h.DB.Model(&models.RefreshToken{}).
		Where("token = ? AND user_id = ? AND is_revoked = ?", token, userID, false).
		Updates(map[string]interface{}{"is_revoked": true, "expires_at": time.Now()}).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token: "+err.Error())
		return
	}

	h.setRefreshCookie(c, "", -1)
	utils.Success(c, "Logout successful. Refresh token has been invalidated.", nil)
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User profile not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
// Email cannot be changed here. Role-specific fields are ignored for the other role.
type UpdateProfileRequest struct {
	FirstName          string   `json:"firstName"`
	LastName           string   `json:"lastName"`
	PhoneNumber        string   `json:"phoneNumber" binding:"omitempty,e164"`
	Specialization     string   `json:"specialization"`
	RegistrationNumber string   `json:"registrationNumber"`
	Fee                *float64 `json:"fee" binding:"omitempty,gte=0"`
	Age                *int     `json:"age" binding:"omitempty,gte=0,lte=150"`
	City               string   `json:"city"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req UpdateProfileRequest
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
	if req.PhoneNumber != "" {
		user.PhoneNumber = req.PhoneNumber
	}
	switch user.Role {
	case models.RoleDoctor:
		if req.Specialization != "" {
			user.Specialization = req.Specialization
		}
		if req.RegistrationNumber != "" {
			user.RegistrationNumber = req.RegistrationNumber
		}
		if req.Fee != nil {
			user.Fee = *req.Fee
		}
	case models.RolePatient:
		if req.Age != nil {
			user.Age = *req.Age
		}
		if req.City != "" {
			user.City = req.City
		}
	}

	if err := h.DB.Save(&user).Error; err != nil {
		utils.InternalServerError(c, "Failed to update profile: "+err.Error())
		return
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}
