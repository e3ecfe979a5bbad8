package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/accessedu/portal-auth/internal/application"
	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/errs"
	"github.com/accessedu/portal-auth/internal/domain/repository"
	"github.com/accessedu/portal-auth/internal/interface/middleware"
	"github.com/accessedu/portal-auth/pkg/response"
)

// UserHandler serves the teacher directory search and the admin console.
type UserHandler struct {
	Svc    *application.UserService
	Logger logrus.FieldLogger
}

func NewUserHandler(svc *application.UserService, logger logrus.FieldLogger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type setRoleRequest struct {
	Role string `json:"role" binding:"required,portalrole"`
}

type setStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// Search GET /api/users/search?q=&role=&size=
func (h *UserHandler) Search(c *gin.Context) {
	role, ok := optionalRole(c.Query("role"))
	if !ok {
		writeError(c, h.Logger, errs.New(errs.KindMalformed, "unknown role"), nil)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	users, err := h.Svc.SearchUsers(c.Request.Context(), c.Query("q"), role, size)
	if err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	response.Success(c, http.StatusOK, users, "", map[string]any{"count": len(users)})
}

// List GET /api/admin/users?role=&limit=&offset=
func (h *UserHandler) List(c *gin.Context) {
	role, ok := optionalRole(c.Query("role"))
	if !ok {
		writeError(c, h.Logger, errs.New(errs.KindMalformed, "unknown role"), nil)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	f := repository.ListFilter{Role: role, Limit: limit, Offset: offset}
	users, err := h.Svc.ListUsers(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	response.Success(c, http.StatusOK, users, "", map[string]any{
		"limit":  f.NormalizeLimit(),
		"offset": f.Offset,
		"count":  len(users),
	})
}

// SetRole PUT /api/admin/users/:email/role
func (h *UserHandler) SetRole(c *gin.Context) {
	actor, _ := middleware.IdentityFrom(c)
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	u, err := h.Svc.SetRole(c.Request.Context(), actor, c.Param("email"), entity.Role(req.Role))
	if err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	response.Success(c, http.StatusOK, u, "role updated", nil)
}

// SetStatus PUT /api/admin/users/:email/status
func (h *UserHandler) SetStatus(c *gin.Context) {
	actor, _ := middleware.IdentityFrom(c)
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	u, err := h.Svc.SetActive(c.Request.Context(), actor, c.Param("email"), *req.IsActive)
	if err != nil {
		writeError(c, h.Logger, err, nil)
		return
	}
	response.Success(c, http.StatusOK, u, "status updated", nil)
}

func optionalRole(s string) (entity.Role, bool) {
	if s == "" {
		return "", true
	}
	return entity.ParseRole(s)
}
