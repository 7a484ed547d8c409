// Package model defines the core domain types for the event listing service.
package model

import "time"

// Event represents a listed event created by an owner. The attendee set is
// persisted separately; AttendeeCount is a derived cache of its size and
// every mutation path updates both in the same transaction.
type Event struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Date          time.Time `json:"date"`
	AttendeeCount int       `json:"attendee_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// User is an account identity. Immutable once created, except for the
// password hash which the reset flow may replace.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated principal extracted from a bearer token.
type Identity struct {
	UserID string
	Email  string
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
}

// EnrollRequest is the payload for enrolling in an event. DisplayName is
// used only in the confirmation email; the enrolling identity always comes
// from the verified token, never from the payload.
type EnrollRequest struct {
	EventID     string `json:"event_id"`
	DisplayName string `json:"user_name"`
}

// SignupRequest is the payload for creating an account.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the payload for exchanging credentials for a token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a freshly minted bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// SendCodeRequest starts the password-reset flow.
type SendCodeRequest struct {
	Email string `json:"email"`
}

// VerifyCodeRequest submits a reset code for verification.
type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyCodeResponse returns the single-use ticket that authorizes the
// subsequent password reset.
type VerifyCodeResponse struct {
	ResetTicket string `json:"reset_ticket"`
}

// ResetPasswordRequest completes the reset flow. The ticket must have been
// minted by a successful code verification for the same email.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	ResetTicket string `json:"reset_ticket"`
	NewPassword string `json:"new_password"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
