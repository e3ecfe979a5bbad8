package entity

import (
	"strings"
	"time"
)

// Role is the closed set of portal roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole returns the role for s (case-insensitive).
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.IsValid()
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// Satisfies reports whether a holder of r may act as required. Admin satisfies every role.
func (r Role) Satisfies(required Role) bool {
	return r == required || r == RoleAdmin
}

// AccessibilityPrefs are the reading aids a learner chose for the portal.
type AccessibilityPrefs struct {
	DyslexiaFont bool `json:"dyslexia_font" bson:"dyslexia_font"`
	HighContrast bool `json:"high_contrast" bson:"high_contrast"`
	TextToSpeech bool `json:"text_to_speech" bson:"text_to_speech"`
}

// User is the aggregate root for the identity domain.
// PasswordHash holds a bcrypt hash and is never serialized.
type User struct {
	ID                string             `bson:"_id"`
	Email             string             `bson:"email"`
	PasswordHash      string             `bson:"password_hash" json:"-"`
	Role              Role               `bson:"role"`
	FullName          string             `bson:"full_name"`
	PreferredLanguage string             `bson:"preferred_language"`
	Accessibility     AccessibilityPrefs `bson:"accessibility"`
	IsActive          bool               `bson:"is_active"`
	IsVerified        bool               `bson:"is_verified"`
	VerifiedAt        *time.Time         `bson:"verified_at,omitempty"`
	LastLogin         *time.Time         `bson:"last_login,omitempty"`
	LoginCount        int64              `bson:"login_count"`
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
}

// PublicUser is the projection returned to clients.
type PublicUser struct {
	ID                string             `json:"id"`
	Email             string             `json:"email"`
	Role              Role               `json:"role"`
	FullName          string             `json:"full_name"`
	PreferredLanguage string             `json:"preferred_language"`
	Accessibility     AccessibilityPrefs `json:"accessibility"`
	IsActive          bool               `json:"is_active"`
	IsVerified        bool               `json:"is_verified"`
	LastLogin         *time.Time         `json:"last_login,omitempty"`
	LoginCount        int64              `json:"login_count"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Public returns the client-facing projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:                u.ID,
		Email:             u.Email,
		Role:              u.Role,
		FullName:          u.FullName,
		PreferredLanguage: u.PreferredLanguage,
		Accessibility:     u.Accessibility,
		IsActive:          u.IsActive,
		IsVerified:        u.IsVerified,
		LastLogin:         u.LastLogin,
		LoginCount:        u.LoginCount,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
