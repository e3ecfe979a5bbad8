package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/accessedu/portal-auth/internal/domain/errs"
	"github.com/accessedu/portal-auth/pkg/response"
	"github.com/accessedu/portal-auth/pkg/validation"
)

var kindStatus = map[errs.Kind]int{
	errs.KindConflict:           http.StatusBadRequest,
	errs.KindInvalidCredentials: http.StatusUnauthorized,
	errs.KindAccountDeactivated: http.StatusUnauthorized,
	errs.KindUnauthenticated:    http.StatusUnauthorized,
	errs.KindUnauthorized:       http.StatusForbidden,
	errs.KindNotFound:           http.StatusNotFound,
	errs.KindMalformed:          http.StatusBadRequest,
	errs.KindAlreadyVerified:    http.StatusBadRequest,
	errs.KindValidation:         http.StatusBadRequest,
	errs.KindInternal:           http.StatusInternalServerError,
}

// StatusFor maps an application error kind to its HTTP status.
func StatusFor(kind errs.Kind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders err with the public message of its kind. Internal
// causes are logged, never returned. override replaces the status for
// specific kinds on a single endpoint.
func writeError(c *gin.Context, logger logrus.FieldLogger, err error, override map[errs.Kind]int) {
	kind := errs.KindOf(err)
	status := StatusFor(kind)
	if s, ok := override[kind]; ok {
		status = s
	}
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.FullPath(),
		}).Error("request failed")
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	response.Error(c, status, errs.MessageOf(err), response.ErrorBody{Code: kind.String()})
}

func writeBindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "invalid payload", response.ErrorBody{
		Code:    errs.KindMalformed.String(),
		Details: validation.ToDetails(err),
	})
}
