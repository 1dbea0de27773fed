package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/residencyreview/eras-review-api/internal/auth"
	"github.com/residencyreview/eras-review-api/internal/email"
	"github.com/residencyreview/eras-review-api/internal/models"
)

const userColumns = `id, role, status, email, password_hash, full_name, phone_number, medical_school,
	graduation_year, specialty, stripe_customer_id, verification_code, verification_expiry, verification_attempts,
	created_at, updated_at`

func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// --- User Registration ---

// RegisterInput is separate from models.User because we never accept an
// id, role or status from the client.
type RegisterInput struct {
	FullName       string  `json:"fullName" binding:"required"`
	Email          string  `json:"email" binding:"required,email"`
	Password       string  `json:"password" binding:"required,min=8"`
	PhoneNumber    *string `json:"phoneNumber"`
	MedicalSchool  *string `json:"medicalSchool"`
	GraduationYear *int    `json:"graduationYear" binding:"omitempty,min=1950,max=2100"`
	Specialty      *string `json:"specialty"`
}

// Register is the handler for POST /v1/auth/register.
// It creates an unverified applicant and emails a verification code.
func (h *Handlers) Register(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Hash the Password ---
	var password models.Password
	if err := password.Set(input.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	// 3. --- Generate Verification Code ---
	code, err := auth.GenerateVerificationCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate verification code"})
		return
	}
	now := h.now()
	expiry := now.Add(auth.VerificationTTL)

	// 4. --- Save to Database ---
	user := &models.User{
		Role:               models.RoleApplicant,
		Status:             models.UserStatusUnverified,
		Email:              strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash:       password.Hash,
		FullName:           strings.TrimSpace(input.FullName),
		PhoneNumber:        input.PhoneNumber,
		MedicalSchool:      input.MedicalSchool,
		GraduationYear:     input.GraduationYear,
		Specialty:          input.Specialty,
		VerificationCode:   &code,
		VerificationExpiry: &expiry,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	result, err := h.DB.NamedExecContext(c.Request.Context(), `
		INSERT INTO users
		(role, status, email, password_hash, full_name, phone_number, medical_school, graduation_year,
		 specialty, verification_code, verification_expiry, created_at, updated_at)
		VALUES
		(:role, :status, :email, :password_hash, :full_name, :phone_number, :medical_school, :graduation_year,
		 :specialty, :verification_code, :verification_expiry, :created_at, :updated_at)`, user)
	if err != nil {
		if isDuplicateKey(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}
	user.ID, _ = result.LastInsertId()

	// 5. --- Send Verification Email ---
	h.sendEmail(c.Request.Context(), email.TemplateVerification, map[string]any{
		"Name": user.FullName,
		"Code": code,
	}, user.Email)

	// 6. --- Send Success Response ---
	c.JSON(http.StatusCreated, gin.H{
		"message": "Account created. Check your email for a verification code.",
		"user":    user,
	})
}

// --- User Verification ---

type VerifyEmailInput struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

// VerifyEmail is the handler for POST /v1/auth/verify-email.
func (h *Handlers) VerifyEmail(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input VerifyEmailInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Find User By Email ---
	var user models.User
	err := h.DB.GetContext(c.Request.Context(), &user,
		"SELECT "+userColumns+" FROM users WHERE email = ?", strings.ToLower(input.Email))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// 3. --- Check Status, Code & Expiry ---
	if user.Status != models.UserStatusUnverified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account is already verified"})
		return
	}
	if user.VerificationCode == nil || user.VerificationExpiry == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No verification code found for this user"})
		return
	}
	if *user.VerificationCode != input.Code {
		h.recordFailedVerification(c, user.ID)
		return
	}
	if h.now().After(*user.VerificationExpiry) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification code has expired"})
		return
	}

	// 4. --- Activate Account ---
	_, err = h.DB.ExecContext(c.Request.Context(), `
		UPDATE users
		SET status = ?, verification_code = NULL, verification_expiry = NULL, verification_attempts = 0, updated_at = ?
		WHERE id = ?`, models.UserStatusActive, h.now(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user status"})
		return
	}

	h.sendEmail(c.Request.Context(), email.TemplateWelcome, map[string]any{"Name": user.FullName}, user.Email)

	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully. You can now log in."})
}

// recordFailedVerification counts a wrong code and voids the code once the
// user runs out of attempts. Both updates are single statements so parallel
// guesses cannot share one attempt.
func (h *Handlers) recordFailedVerification(c *gin.Context, userID int64) {
	ctx := c.Request.Context()
	if _, err := h.DB.ExecContext(ctx,
		"UPDATE users SET verification_attempts = verification_attempts + 1 WHERE id = ?", userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res, err := h.DB.ExecContext(ctx, `
		UPDATE users SET verification_code = NULL, verification_expiry = NULL
		WHERE id = ? AND verification_attempts >= ?`, userID, auth.MaxVerificationAttempts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		h.Log.WithField("user_id", userID).Warn("verification code voided after too many attempts")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many failed attempts. Please request a new verification code."})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verification code"})
}

type ResendCodeInput struct {
	Email string `json:"email" binding:"required,email"`
}

// ResendVerificationCode is the handler for POST /v1/auth/resend-code.
func (h *Handlers) ResendVerificationCode(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input ResendCodeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Find User ---
	var user models.User
	err := h.DB.GetContext(c.Request.Context(), &user,
		"SELECT "+userColumns+" FROM users WHERE email = ?", strings.ToLower(input.Email))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if user.Status != models.UserStatusUnverified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "This account is already verified"})
		return
	}

	// 3. --- Generate New Code & Expiry ---
	code, err := auth.GenerateVerificationCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate code"})
		return
	}
	now := h.now()
	_, err = h.DB.ExecContext(c.Request.Context(), `
		UPDATE users
		SET verification_code = ?, verification_expiry = ?, verification_attempts = 0, updated_at = ?
		WHERE id = ?`, code, now.Add(auth.VerificationTTL), now, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update verification code"})
		return
	}

	// 4. --- Send New Email ---
	h.sendEmail(c.Request.Context(), email.TemplateVerification, map[string]any{
		"Name": user.FullName,
		"Code": code,
	}, user.Email)

	c.JSON(http.StatusOK, gin.H{"message": "A new verification code has been sent to your email."})
}

// --- Login ---

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login is the handler for POST /v1/auth/login.
func (h *Handlers) Login(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Find User By Email ---
	var user models.User
	err := h.DB.GetContext(c.Request.Context(), &user,
		"SELECT "+userColumns+" FROM users WHERE email = ?", strings.ToLower(input.Email))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// 3. --- Check User Status ---
	switch user.Status {
	case models.UserStatusUnverified:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account not verified. Please check your email for a verification code."})
		return
	case models.UserStatusSuspended:
		c.JSON(http.StatusForbidden, gin.H{"error": "Your account has been suspended. Please contact support."})
		return
	case models.UserStatusActive:
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unknown user status"})
		return
	}

	// 4. --- Check Password ---
	password := models.Password{Hash: user.PasswordHash}
	match, err := password.Matches(input.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check password"})
		return
	}
	if !match {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	// 5. --- Generate JWT (The "Passport") ---
	token, err := h.Tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

// --- Profile ---

// GetMe is the handler for GET /v1/me.
func (h *Handlers) GetMe(c *gin.Context) {
	var user models.User
	err := h.DB.GetContext(c.Request.Context(), &user,
		"SELECT "+userColumns+" FROM users WHERE id = ?", currentUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateMeInput holds optional profile fields; nil means "leave unchanged".
type UpdateMeInput struct {
	FullName       *string `json:"fullName" binding:"omitempty,min=1"`
	PhoneNumber    *string `json:"phoneNumber"`
	MedicalSchool  *string `json:"medicalSchool"`
	GraduationYear *int    `json:"graduationYear" binding:"omitempty,min=1950,max=2100"`
	Specialty      *string `json:"specialty"`
	Password       *string `json:"password" binding:"omitempty,min=8"`
}

// UpdateMe is the handler for PATCH /v1/me.
func (h *Handlers) UpdateMe(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input UpdateMeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Build Dynamic Update ---
	sets := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if input.FullName != nil {
		add("full_name", strings.TrimSpace(*input.FullName))
	}
	if input.PhoneNumber != nil {
		add("phone_number", *input.PhoneNumber)
	}
	if input.MedicalSchool != nil {
		add("medical_school", *input.MedicalSchool)
	}
	if input.GraduationYear != nil {
		add("graduation_year", *input.GraduationYear)
	}
	if input.Specialty != nil {
		add("specialty", *input.Specialty)
	}
	if input.Password != nil {
		var password models.Password
		if err := password.Set(*input.Password); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		add("password_hash", password.Hash)
	}
	if len(sets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}
	add("updated_at", h.now())
	args = append(args, currentUserID(c))

	// 3. --- Execute Update ---
	_, err := h.DB.ExecContext(c.Request.Context(),
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	h.GetMe(c)
}
