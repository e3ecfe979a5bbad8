package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/accessedu/portal-auth/internal/application"
	"github.com/accessedu/portal-auth/internal/domain/entity"
	handlers "github.com/accessedu/portal-auth/internal/interface/http"
	"github.com/accessedu/portal-auth/internal/interface/middleware"
)

// UserModule wires the role-gated surfaces:
// Teacher: GET /api/users/search
// Admin:   GET /api/admin/users, PUT /api/admin/users/:email/{role,status}
type UserModule struct {
	Handler    *handlers.UserHandler
	Authz      *application.Authorizer
	Limits     middleware.Counter
	CookieAuth bool
}

func NewUserModule(h *handlers.UserHandler, authz *application.Authorizer, limits middleware.Counter, cookieAuth bool) *UserModule {
	return &UserModule{Handler: h, Authz: authz, Limits: limits, CookieAuth: cookieAuth}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	authn := middleware.Authenticate(m.Authz, m.CookieAuth)
	perUser := middleware.RateLimit(m.Limits, 120, time.Minute, middleware.KeyByUserID(), nil)

	users := rg.Group("/users", authn, perUser, middleware.RequireRole(entity.RoleTeacher))
	users.GET("/search", m.Handler.Search)

	admin := rg.Group("/admin", authn, perUser, middleware.RequireRole(entity.RoleAdmin))
	{
		admin.GET("/users", m.Handler.List)
		admin.PUT("/users/:email/role", m.Handler.SetRole)
		admin.PUT("/users/:email/status", m.Handler.SetStatus)
	}
}
