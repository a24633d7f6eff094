package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness information.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the state of each backing dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// AccountSummary describes a minimal view of an account returned by the API.
type AccountSummary struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	Enabled             bool       `json:"enabled"`
	Locked              bool       `json:"locked"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedAt            *time.Time `json:"locked_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
}

// AuthLoginRequest defines the payload for the login endpoint.
type AuthLoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// AuthLoginResponse describes the response returned for a successful login.
type AuthLoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	AccountID   string `json:"account_id"`
	Username    string `json:"username"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=10"`
}

// RegistrationResponse contains registration results and next steps.
type RegistrationResponse struct {
	AccountID            string    `json:"account_id"`
	Username             string    `json:"username"`
	RequiresVerification bool      `json:"requires_verification"`
	ExpiresAt            time.Time `json:"expires_at"`
	// SECURITY: DevToken is ONLY exposed in development mode.
	// In production, verification tokens are sent via secure channels.
	DevToken *string `json:"dev_token,omitempty"` // Development only
}

// RegistrationVerifyRequest holds the verification payload.
type RegistrationVerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// RegistrationVerifyResponse is returned after a successful verification.
type RegistrationVerifyResponse struct {
	Message string         `json:"message"`
	Account AccountSummary `json:"account"`
}

// ResendVerificationRequest asks for a fresh verification token.
type ResendVerificationRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

// ResendVerificationAcceptedResponse is returned for every resend request.
// Outside development mode the body is identical whether or not the
// identifier matched an account.
type ResendVerificationAcceptedResponse struct {
	Message  string  `json:"message"`
	DevToken *string `json:"dev_token,omitempty"` // Development only
}

// PasswordResetRequest asks for a reset token to be issued.
type PasswordResetRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

// PasswordResetAcceptedResponse is returned for every reset request. Outside
// development mode the body is identical whether or not the identifier
// matched an account.
type PasswordResetAcceptedResponse struct {
	Message  string  `json:"message"`
	DevToken *string `json:"dev_token,omitempty"` // Development only
}

// PasswordResetConfirmRequest carries the reset token and replacement password.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=10"`
}
