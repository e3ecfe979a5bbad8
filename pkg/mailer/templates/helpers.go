package templates

import (
	"time"

	"github.com/accessedu/portal-auth/config"
)

// Brand carries the sender-side fields every email shows.
type Brand struct {
	CompanyName string
	AppName     string
	SupportURL  string
}

func BrandFromConfig(cfg *config.Config) Brand {
	return Brand{CompanyName: cfg.CompanyName, AppName: cfg.AppName, SupportURL: cfg.SupportURL}
}

// Option pattern
type Option func(*EmailData)

const humanTime = "02 January 2006, 15:04 MST"

func WithTime(t time.Time) Option {
	return func(d *EmailData) { d.Time = t.UTC().Format(humanTime) }
}

// WithExpiresAt is a no-op for the zero time (links that never expire).
func WithExpiresAt(t time.Time) Option {
	return func(d *EmailData) {
		if !t.IsZero() {
			d.ExpiresAtText = t.UTC().Format(humanTime)
		}
	}
}

func NewBaseEmailData(b Brand, typ, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:           name,
		Email:          email,
		RecipientEmail: email,
		Type:           typ,
		CompanyName:    b.CompanyName,
		AppName:        b.AppName,
		SupportURL:     b.SupportURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func NewVerifyEmailData(b Brand, name, email, verifyURL string, opts ...Option) map[string]any {
	d := NewBaseEmailData(b, VerifyEmail, name, email, opts...)
	d.VerifyURL = verifyURL
	return ToMap(d)
}

func NewResetPasswordData(b Brand, name, email, resetURL string, opts ...Option) map[string]any {
	d := NewBaseEmailData(b, ResetPassword, name, email, opts...)
	d.ResetURL = resetURL
	return ToMap(d)
}

func NewPasswordChangedData(b Brand, name, email string, opts ...Option) map[string]any {
	return ToMap(NewBaseEmailData(b, PasswordChanged, name, email, opts...))
}
