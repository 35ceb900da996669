package auth

import (
	"errors"
	"time"
)

// User is an account row. Every user belongs to exactly one company.
type User struct {
	ID              int64      `json:"id" db:"id"`
	CompanyID       int64      `json:"company_id" db:"company_id"`
	Name            string     `json:"name" db:"name"`
	Email           string     `json:"email" db:"email"`
	PasswordHash    string     `json:"-" db:"password_hash"`
	Role            string     `json:"role" db:"role"`
	APITokenHash    *string    `json:"-" db:"api_token_hash"`
	EmailVerifiedAt *time.Time `json:"email_verified_at" db:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// UserContext is the authenticated principal attached to a request.
type UserContext struct {
	UserID    int64  `json:"user_id"`
	CompanyID int64  `json:"company_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"` // jwt or api_token
}

// TokenPair is returned by login and register. APIToken is only ever shown once.
type TokenPair struct {
	AccessToken string `json:"access_token"`
	APIToken    string `json:"api_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
}

// User roles
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleDriver  = "driver"
)

// Token types
const (
	TokenTypeJWT      = "jwt"
	TokenTypeAPIToken = "api_token"
)

// Default credentials handed to accounts created on someone else's behalf.
const (
	DefaultDriverPassword = "password"
	TemporaryPassword     = "TempPassword123!"
)

var (
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrInvalidToken            = errors.New("invalid token")
	ErrEmailTaken              = errors.New("email already registered")
	ErrWrongPassword           = errors.New("the provided password does not match your current password")
	ErrAlreadyVerified         = errors.New("email already verified")
	ErrInvalidVerificationLink = errors.New("invalid verification link")
	ErrUserNotFound            = errors.New("user not found")
	ErrMemberExists            = errors.New("user with this email already exists")
	ErrNotInCompany            = errors.New("user does not belong to your company")
	ErrRemoveSelf              = errors.New("you cannot remove yourself")
)
