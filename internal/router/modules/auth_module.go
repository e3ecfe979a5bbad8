package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/accessedu/portal-auth/internal/application"
	handlers "github.com/accessedu/portal-auth/internal/interface/http"
	"github.com/accessedu/portal-auth/internal/interface/middleware"
)

// AuthModule registers /auth. A nil Limits disables rate limiting.
type AuthModule struct {
	Handler    *handlers.AuthHandler
	Authz      *application.Authorizer
	Limits     middleware.Counter
	CookieAuth bool
}

func NewAuthModule(h *handlers.AuthHandler, authz *application.Authorizer, limits middleware.Counter, cookieAuth bool) *AuthModule {
	return &AuthModule{Handler: h, Authz: authz, Limits: limits, CookieAuth: cookieAuth}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	g := rg.Group("/auth")

	// Public endpoints: one bucket per route and client
	registerLimiter := middleware.RateLimit(m.Limits, 10, time.Minute, middleware.KeyByIPAndPath(), nil)
	loginLimiter := middleware.RateLimit(m.Limits, 10, time.Minute, middleware.KeyByIPAndPath(), nil)
	refreshLimiter := middleware.RateLimit(m.Limits, 60, time.Minute, middleware.KeyByIPAndPath(), nil)
	forgotLimiter := middleware.RateLimit(m.Limits, 5, time.Minute, middleware.KeyByIPAndPath(), nil)
	confirmLimiter := middleware.RateLimit(m.Limits, 30, time.Minute, middleware.KeyByIPAndPath(), nil)

	g.POST("/register", registerLimiter, m.Handler.Register)
	g.POST("/login", loginLimiter, m.Handler.Login)
	g.POST("/refresh", refreshLimiter, m.Handler.Refresh)
	g.POST("/forgot-password", forgotLimiter, m.Handler.ForgotPassword)
	g.POST("/reset-password", confirmLimiter, m.Handler.ResetPassword)
	g.GET("/verify-email/:token", confirmLimiter, m.Handler.VerifyEmail)

	// Protected
	auth := g.Group("/")
	auth.Use(middleware.Authenticate(m.Authz, m.CookieAuth))
	auth.Use(middleware.RateLimit(m.Limits, 120, time.Minute, middleware.KeyByUserID(), nil))
	{
		auth.GET("/me", m.Handler.Me)
		auth.PUT("/me", m.Handler.UpdateMe)
		auth.POST("/change-password", m.Handler.ChangePassword)
		auth.POST("/logout", m.Handler.Logout)
		auth.POST("/verify-email/resend", middleware.RateLimit(m.Limits, 5, time.Minute, middleware.KeyByIPAndPath(), nil), m.Handler.ResendVerification)
	}
}
