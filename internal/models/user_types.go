package models

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleApplicant = "applicant"
	RoleAdmin     = "admin"

	UserStatusUnverified = "unverified"
	UserStatusActive     = "active"
	UserStatusSuspended  = "suspended"
)

// User Model with Pointers for Nullable Fields
type User struct {
	ID           int64  `json:"id" db:"id"`
	Role         string `json:"role" db:"role"`
	Status       string `json:"status" db:"status"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	FullName     string `json:"fullName" db:"full_name"`

	// --- Applicant Profile (Pointers = Clean JSON) ---
	PhoneNumber    *string `json:"phoneNumber,omitempty" db:"phone_number"`
	MedicalSchool  *string `json:"medicalSchool,omitempty" db:"medical_school"`
	GraduationYear *int    `json:"graduationYear,omitempty" db:"graduation_year"`
	Specialty      *string `json:"specialty,omitempty" db:"specialty"`

	StripeCustomerID *string `json:"-" db:"stripe_customer_id"`

	// Verification
	VerificationCode     *string    `json:"-" db:"verification_code"`
	VerificationExpiry   *time.Time `json:"-" db:"verification_expiry"`
	VerificationAttempts int        `json:"-" db:"verification_attempts"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Password Helper (Standard)
type Password struct {
	Plaintext *string
	Hash      string
}

func (p *Password) Set(plaintextPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintextPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.Hash = string(hash)
	p.Plaintext = &plaintextPassword
	return nil
}

func (p *Password) Matches(plaintextPassword string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(p.Hash), []byte(plaintextPassword))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
