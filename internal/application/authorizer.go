package application

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/errs"
	repo "github.com/accessedu/portal-auth/internal/domain/repository"
	"github.com/accessedu/portal-auth/pkg/helpers"
)

// TokenRevoker is the denylist for token ids. Optional.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Claim revokes jti atomically and reports false if it already was.
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// Identity is the caller resolved from an access token.
type Identity struct {
	User   *entity.User
	Claims *helpers.Claims
}

type Authorizer struct {
	users   repo.UserRepository
	tokens  *helpers.JWTManager
	revoker TokenRevoker
	logger  logrus.FieldLogger
}

func NewAuthorizer(users repo.UserRepository, tokens *helpers.JWTManager, revoker TokenRevoker, logger logrus.FieldLogger) *Authorizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Authorizer{users: users, tokens: tokens, revoker: revoker, logger: logger}
}

// Authenticate resolves an access token to a live, active user. Every
// failure is reported as ErrUnauthenticated; the cause is only logged.
func (a *Authorizer) Authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := a.tokens.Verify(token, helpers.PurposeAccess)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnauthenticated, errs.ErrUnauthenticated.Message, err)
	}
	if a.revoker != nil {
		revoked, err := a.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			a.logger.WithError(err).Warn("revocation check failed")
			return nil, errs.Wrap(errs.KindUnauthenticated, errs.ErrUnauthenticated.Message, err)
		}
		if revoked {
			return nil, errs.Wrap(errs.KindUnauthenticated, errs.ErrUnauthenticated.Message, errors.New("token revoked"))
		}
	}
	u, err := a.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			a.logger.WithError(err).Error("load user for token failed")
		}
		return nil, errs.Wrap(errs.KindUnauthenticated, errs.ErrUnauthenticated.Message, err)
	}
	if !u.IsActive {
		return nil, errs.Wrap(errs.KindUnauthenticated, errs.ErrUnauthenticated.Message, errors.New("user inactive"))
	}
	if claims.PasswordStamp != helpers.PasswordStamp(u.PasswordHash) {
		return nil, errs.Wrap(errs.KindUnauthenticated, errs.ErrUnauthenticated.Message, errors.New("password changed since issue"))
	}
	return &Identity{User: u, Claims: claims}, nil
}

// RequireRole allows the required role and admins.
func RequireRole(u *entity.User, required entity.Role) error {
	if u == nil {
		return errs.ErrUnauthenticated
	}
	if !u.Role.Satisfies(required) {
		return errs.ErrUnauthorized
	}
	return nil
}
