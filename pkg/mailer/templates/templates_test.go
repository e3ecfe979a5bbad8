package templates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBrand = Brand{CompanyName: "Accessibility Education Portal", AppName: "portal", SupportURL: "mailto:help@example.org"}

func TestRender_VerifyEmail(t *testing.T) {
	exp := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	data := NewVerifyEmailData(testBrand, "Alice", "alice@example.com", "https://portal.test/api/auth/verify-email/tok", WithExpiresAt(exp))

	subject, text, html, err := Render(VerifyEmail, data)
	require.NoError(t, err)
	assert.Equal(t, "Verify your email address for Accessibility Education Portal", subject)
	assert.Contains(t, text, "Hi Alice,")
	assert.Contains(t, text, "https://portal.test/api/auth/verify-email/tok")
	assert.Contains(t, text, "04 May 2026, 10:30 UTC")
	assert.Contains(t, html, `href="https://portal.test/api/auth/verify-email/tok"`)
}

func TestRender_UnboundedLinkOmitsExpiry(t *testing.T) {
	data := NewVerifyEmailData(testBrand, "", "alice@example.com", "https://portal.test/v/tok", WithExpiresAt(time.Time{}))

	_, text, _, err := Render(VerifyEmail, data)
	require.NoError(t, err)
	assert.Contains(t, text, "Hi alice@example.com,")
	assert.NotContains(t, text, "valid until")
}

func TestRender_HTMLEscapesData(t *testing.T) {
	data := NewPasswordChangedData(testBrand, "<script>x</script>", "alice@example.com")

	_, text, html, err := Render(PasswordChanged, data)
	require.NoError(t, err)
	assert.Contains(t, text, "<script>x</script>")
	assert.NotContains(t, html, "<script>x</script>")
}

func TestRender_ResetPassword(t *testing.T) {
	data := NewResetPasswordData(testBrand, "Alice", "alice@example.com", "https://app.test/reset-password?token=abc")

	subject, text, _, err := Render(ResetPassword, data)
	require.NoError(t, err)
	assert.Equal(t, "Reset your password", subject)
	assert.Contains(t, text, "https://app.test/reset-password?token=abc")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, _, _, err := Render("universal", map[string]any{})
	assert.Error(t, err)
}

func TestKnown(t *testing.T) {
	for _, n := range []string{VerifyEmail, ResetPassword, PasswordChanged} {
		assert.True(t, Known(n), n)
	}
	assert.False(t, Known("welcome"))
}
