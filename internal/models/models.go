package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a QR login session as stored
// by the backend. Unknown values map to StatusPending so a newly added
// backend state degrades to "keep waiting" rather than a hard failure.
type SessionStatus int

const (
	StatusPending SessionStatus = iota
	StatusScanned
	StatusAuthenticated
	StatusExpired
)

func (s SessionStatus) String() string {
	switch s {
	case StatusScanned:
		return "scanned"
	case StatusAuthenticated:
		return "authenticated"
	case StatusExpired:
		return "expired"
	default:
		return "pending"
	}
}

// ParseSessionStatus maps the backend's status column to a SessionStatus.
func ParseSessionStatus(s string) SessionStatus {
	switch strings.ToLower(s) {
	case "scanned":
		return StatusScanned
	case "authenticated":
		return StatusAuthenticated
	case "expired":
		return StatusExpired
	default:
		return StatusPending
	}
}

// LoginSession is one row of qr_login_sessions. The desktop creates it
// via the create_qr_session RPC and only ever reads it afterwards; the
// backend owns all state transitions.
type LoginSession struct {
	ID              uuid.UUID  `json:"id"`
	SessionID       string     `json:"session_id"`
	UserID          *uuid.UUID `json:"user_id"`
	RawStatus       string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	DesktopDeviceID string     `json:"desktop_device_id"`
}

// Status returns the parsed lifecycle state.
func (s *LoginSession) Status() SessionStatus {
	return ParseSessionStatus(s.RawStatus)
}

// Expired reports whether the session's TTL has elapsed at the given time.
func (s *LoginSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Profile is one row of profiles, the canonical identity record.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName prefers the structured name fields over full_name.
func (p *Profile) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name != "" {
		return name
	}
	return p.FullName
}

// PaymentStatusPaid marks a registration whose plays count toward quota.
const PaymentStatusPaid = "paid"

// Registration is one row of event_registrations. It doubles as the
// entitlement record (games_remaining, payment_status) and as a fallback
// identity source when no profile row exists for the user.
type Registration struct {
	ID             uuid.UUID `json:"id"`
	EventID        uuid.UUID `json:"event_id"`
	UserID         uuid.UUID `json:"user_id"`
	GamesRemaining int       `json:"games_remaining"`
	PaymentStatus  string    `json:"payment_status"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	RegisteredAt   time.Time `json:"registered_at"`
}

// Paid reports whether the registration's plays are valid for quota.
func (r *Registration) Paid() bool {
	return strings.EqualFold(r.PaymentStatus, PaymentStatusPaid)
}

// User is one row of users, consulted during auto-login revalidation.
type User struct {
	ID          uuid.UUID  `json:"id"`
	PhoneNumber string     `json:"phone_number"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login"`
}

// Identity is the authenticated user as known to the kiosk for the
// lifetime of the process session.
//
// PlaysRemaining is a snapshot, never the source of truth: it is always
// recomputed by summing live entitlement records. The only local
// mutation permitted is the refresh that follows a successful
// server-side decrement.
type Identity struct {
	UserID         uuid.UUID
	DisplayName    string
	Email          string
	Phone          string
	PlaysRemaining int
	LastLogin      time.Time
}
