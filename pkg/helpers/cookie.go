package helpers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Manager writes the optional token cookies for browser clients that prefer
// them to the Authorization header.
type Manager struct {
	Domain string
	Secure bool
	now    func() time.Time
}

func NewCookie(domain string, secure bool) *Manager {
	return &Manager{Domain: domain, Secure: secure, now: time.Now}
}

func (m *Manager) SetPair(c *gin.Context, access string, aexp time.Time, refresh string, rexp time.Time) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, access, m.maxAgeFrom(aexp), "/", m.Domain, m.Secure, true)
	// The refresh cookie is only needed by the refresh and logout endpoints.
	c.SetCookie(RefreshCookie, refresh, m.maxAgeFrom(rexp), "/api/auth", m.Domain, m.Secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, "", -1, "/", m.Domain, m.Secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/api/auth", m.Domain, m.Secure, true)
}

// maxAgeFrom returns 0 (session cookie) for a zero expiry.
func (m *Manager) maxAgeFrom(exp time.Time) int {
	if exp.IsZero() {
		return 0
	}
	sec := int(exp.Sub(m.now()).Seconds())
	if sec < 1 {
		return -1
	}
	return sec
}
