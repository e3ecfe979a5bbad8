package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/accessedu/portal-auth/internal/application"
	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/errs"
	"github.com/accessedu/portal-auth/pkg/helpers"
	"github.com/accessedu/portal-auth/pkg/response"
)

const (
	CtxUserIDKey   = "userID"
	CtxIdentityKey = "identity"
)

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate resolves the access token into an identity and stores it in
// the Gin context. With cookieAuth the access_token cookie is accepted when
// no header is sent.
func Authenticate(authz *application.Authorizer, cookieAuth bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" && cookieAuth {
			token, _ = c.Cookie(helpers.AccessCookie)
		}
		id, err := authz.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, http.StatusUnauthorized, errs.MessageOf(errs.ErrUnauthenticated), response.ErrorBody{Code: errs.KindUnauthenticated.String()})
			return
		}
		c.Set(CtxIdentityKey, id)
		c.Set(CtxUserIDKey, id.User.ID)
		c.Next()
	}
}

// RequireRole must run after Authenticate. Admins pass every role check.
func RequireRole(role entity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, errs.MessageOf(errs.ErrUnauthenticated), response.ErrorBody{Code: errs.KindUnauthenticated.String()})
			return
		}
		if err := application.RequireRole(id.User, role); err != nil {
			response.Abort(c, http.StatusForbidden, errs.MessageOf(err), response.ErrorBody{Code: errs.KindOf(err).String()})
			return
		}
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (*application.Identity, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*application.Identity)
	return id, ok && id != nil
}
