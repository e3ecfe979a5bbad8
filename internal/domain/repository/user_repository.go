package repository

import (
	"context"
	"errors"
	"time"

	"github.com/accessedu/portal-auth/internal/domain/entity"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when the unique email constraint rejects an insert.
	ErrConflict = errors.New("email already exists")
	// ErrPrecondition is returned when an update guard does not hold.
	ErrPrecondition = errors.New("update precondition failed")
)

// UserPatch is a partial update. Nil fields are left untouched.
// UpdatedAt is always written.
type UserPatch struct {
	FullName          *string
	PreferredLanguage *string
	DyslexiaFont      *bool
	HighContrast      *bool
	TextToSpeech      *bool

	PasswordHash *string
	Role         *entity.Role
	IsActive     *bool
	IsVerified   *bool
	VerifiedAt   *time.Time
	LastLogin    *time.Time

	IncLoginCount bool

	// OnlyIfUnverified makes the update conditional on verified_at being unset.
	OnlyIfUnverified bool

	UpdatedAt time.Time
}

// ListFilter narrows List results.
type ListFilter struct {
	Role   entity.Role
	Limit  int
	Offset int
}

// UserRepository is the credential store. Every operation is atomic on a
// single user document; emails are expected already normalized.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	Insert(ctx context.Context, u *entity.User) (*entity.User, error)
	UpdateFields(ctx context.Context, email string, patch UserPatch) (*entity.User, error)
	List(ctx context.Context, f ListFilter) ([]entity.User, error)
}

// Apply writes the non-nil fields of p onto u. Stores that update in memory share it.
func (p UserPatch) Apply(u *entity.User) {
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.PreferredLanguage != nil {
		u.PreferredLanguage = *p.PreferredLanguage
	}
	if p.DyslexiaFont != nil {
		u.Accessibility.DyslexiaFont = *p.DyslexiaFont
	}
	if p.HighContrast != nil {
		u.Accessibility.HighContrast = *p.HighContrast
	}
	if p.TextToSpeech != nil {
		u.Accessibility.TextToSpeech = *p.TextToSpeech
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.IsVerified != nil {
		u.IsVerified = *p.IsVerified
	}
	if p.VerifiedAt != nil {
		t := *p.VerifiedAt
		u.VerifiedAt = &t
	}
	if p.LastLogin != nil {
		t := *p.LastLogin
		u.LastLogin = &t
	}
	if p.IncLoginCount {
		u.LoginCount++
	}
	if p.UpdatedAt.After(u.UpdatedAt) {
		u.UpdatedAt = p.UpdatedAt
	}
}

// NormalizeLimit clamps a page size to [1, 100], defaulting to 20.
func (f ListFilter) NormalizeLimit() int {
	switch {
	case f.Limit <= 0:
		return 20
	case f.Limit > 100:
		return 100
	default:
		return f.Limit
	}
}
