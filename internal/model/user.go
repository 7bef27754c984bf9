package model

import (
	"net/mail"
	"time"
)

// Role identifies the kind of console account a user signed in with.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleGuest Role = "guest"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleGuest:
		return true
	}
	return false
}

// User is the identity anchor for all per-user partitioning. It is created at
// login or guest entry and discarded on logout; it is never mutated.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Validate checks the structural shape of a stored or returned user record.
func (u User) Validate() error {
	if u.ID == "" {
		return fieldError("id", "must not be empty")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fieldError("email", "must be a valid email address")
	}
	if !u.Role.Valid() {
		return fieldError("role", "must be one of user, admin, guest")
	}
	return nil
}

// AuthToken is the credential pair issued at login. It is considered expired
// once its age in whole seconds reaches ExpiresIn.
type AuthToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds
	CreatedAt    int64  `json:"createdAt"` // epoch milliseconds
}

// Validate checks the structural shape of a stored token record.
func (t AuthToken) Validate() error {
	if t.AccessToken == "" {
		return fieldError("accessToken", "must not be empty")
	}
	if t.RefreshToken == "" {
		return fieldError("refreshToken", "must not be empty")
	}
	if t.ExpiresIn <= 0 {
		return fieldError("expiresIn", "must be positive")
	}
	if t.CreatedAt <= 0 {
		return fieldError("createdAt", "must be positive")
	}
	return nil
}

// Expired reports whether the token is past its validity window at now.
func (t AuthToken) Expired(now time.Time) bool {
	age := float64(now.UnixMilli()-t.CreatedAt) / 1000
	return age >= float64(t.ExpiresIn)
}

// ExpiresAt returns the wall-clock instant at which the token expires.
func (t AuthToken) ExpiresAt() time.Time {
	return time.UnixMilli(t.CreatedAt).Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Session is the authenticated pair persisted for the active profile.
type Session struct {
	Token AuthToken `json:"token"`
	User  User      `json:"user"`
}

// LoginInput is the payload accepted by the mock sign-in flow.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate mirrors the sign-in form rules.
func (in LoginInput) Validate() error {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fieldError("email", "Please enter a valid email")
	}
	if len(in.Password) < 6 {
		return fieldError("password", "Password must be at least 6 characters")
	}
	return nil
}
