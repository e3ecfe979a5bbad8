package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"

	"github.com/accessedu/portal-auth/internal/application"
	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/errs"
	"github.com/accessedu/portal-auth/internal/interface/middleware"
	"github.com/accessedu/portal-auth/pkg/helpers"
	"github.com/accessedu/portal-auth/pkg/response"
)

type AuthHandler struct {
	Svc     *application.AuthService
	Logger  logrus.FieldLogger
	Cookies *helpers.Manager // nil unless cookie auth is enabled
}

func NewAuthHandler(svc *application.AuthService, logger logrus.FieldLogger, cookies *helpers.Manager) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger, Cookies: cookies}
}

type registerRequest struct {
	Email             string                     `json:"email" binding:"required,email,max=254"`
	Password          string                     `json:"password" binding:"required"`
	ConfirmPassword   string                     `json:"confirm_password" binding:"required"`
	FullName          string                     `json:"full_name" binding:"omitempty,max=120"`
	PreferredLanguage string                     `json:"preferred_language" binding:"omitempty,langcode"`
	Accessibility     *entity.AccessibilityPrefs `json:"accessibility"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type updateProfileRequest struct {
	FullName          *string `json:"full_name" binding:"omitempty,max=120"`
	PreferredLanguage *string `json:"preferred_language" binding:"omitempty,langcode"`
	Accessibility     *struct {
		DyslexiaFont *bool `json:"dyslexia_font"`
		HighContrast *bool `json:"high_contrast"`
		TextToSpeech *bool `json:"text_to_speech"`
	} `json:"accessibility"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// Keys a client may never write through PUT /me.
var protectedProfileKeys = []string{"id", "email", "password", "password_hash", "role", "is_active", "is_verified", "verified_at", "login_count", "last_login"}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	in := application.RegisterInput{
		Email:             req.Email,
		Password:          req.Password,
		ConfirmPassword:   req.ConfirmPassword,
		FullName:          req.FullName,
		PreferredLanguage: req.PreferredLanguage,
	}
	if req.Accessibility != nil {
		in.Accessibility = *req.Accessibility
	}
	u, err := h.Svc.Register(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	response.Success(c, http.StatusCreated, u, "registered", nil)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	h.setCookies(c, res)
	response.Success(c, http.StatusOK, res, "login successful", nil)
}

// Refresh POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	token := req.RefreshToken
	if token == "" && h.Cookies != nil {
		token, _ = c.Cookie(helpers.RefreshCookie)
	}
	res, err := h.Svc.Refresh(c.Request.Context(), token)
	if err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	h.setCookies(c, res)
	response.Success(c, http.StatusOK, res, "token refreshed", nil)
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	response.Success(c, http.StatusOK, h.Svc.GetProfile(c.Request.Context(), id), "", nil)
}

// UpdateMe PUT /api/auth/me
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)

	raw, err := c.GetRawData()
	if err != nil {
		writeBindError(c, err)
		return
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		writeBindError(c, err)
		return
	}
	for _, k := range protectedProfileKeys {
		if _, ok := keys[k]; ok {
			writeError(c, h.Logger, errs.New(errs.KindMalformed, "field "+k+" cannot be updated"), nil)
			return
		}
	}
	var req updateProfileRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		writeBindError(c, err)
		return
	}

	in := application.ProfileInput{FullName: req.FullName, PreferredLanguage: req.PreferredLanguage}
	if a := req.Accessibility; a != nil {
		in.DyslexiaFont, in.HighContrast, in.TextToSpeech = a.DyslexiaFont, a.HighContrast, a.TextToSpeech
	}
	u, err := h.Svc.UpdateProfile(c.Request.Context(), id, in)
	if err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	response.Success(c, http.StatusOK, u, "profile updated", nil)
}

// ChangePassword POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.Svc.ChangePassword(c.Request.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		// a wrong current password is a bad request here, not a failed login
		writeError(c, h.Logger, err, map[errs.Kind]int{errs.KindInvalidCredentials: http.StatusBadRequest})
		return
	}
	h.clearCookies(c)
	response.Success[any](c, http.StatusOK, nil, application.MsgPasswordChanged, nil)
}

// ForgotPassword POST /api/auth/forgot-password
// The reply is identical for every input.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		h.Svc.ForgotPassword(c.Request.Context(), req.Email)
	}
	response.Static(c, http.StatusOK, application.MsgForgotPassword)
}

// ResetPassword POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.Svc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	response.Success[any](c, http.StatusOK, nil, application.MsgPasswordReset, nil)
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" && h.Cookies != nil {
		req.RefreshToken, _ = c.Cookie(helpers.RefreshCookie)
	}
	if err := h.Svc.Logout(c.Request.Context(), id, req.RefreshToken); err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	h.clearCookies(c)
	response.Success[any](c, http.StatusOK, nil, application.MsgLoggedOut, nil)
}

// VerifyEmail GET /api/auth/verify-email/:token
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if _, err := h.Svc.VerifyEmail(c.Request.Context(), c.Param("token")); err != nil {
		// a token for a deleted account is just a bad link
		writeError(c, h.Logger, err, map[errs.Kind]int{errs.KindNotFound: http.StatusBadRequest})
		return
	}
	response.Success[any](c, http.StatusOK, nil, application.MsgEmailVerified, nil)
}

// ResendVerification POST /api/auth/verify-email/resend
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	if err := h.Svc.ResendVerification(c.Request.Context(), id); err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	response.Success[any](c, http.StatusOK, nil, application.MsgVerificationSent, nil)
}

func (h *AuthHandler) setCookies(c *gin.Context, res *application.LoginResult) {
	if h.Cookies == nil {
		return
	}
	h.Cookies.SetPair(c, res.AccessToken, res.AccessExpiresAt, res.RefreshToken, res.RefreshExpiresAt)
}

func (h *AuthHandler) clearCookies(c *gin.Context) {
	if h.Cookies != nil {
		h.Cookies.Clear(c)
	}
}
