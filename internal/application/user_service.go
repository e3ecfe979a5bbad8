package application

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/errs"
	repo "github.com/accessedu/portal-auth/internal/domain/repository"
)

// UserSearcher queries the search index. Optional.
type UserSearcher interface {
	Search(ctx context.Context, q string, role entity.Role, size int) ([]entity.PublicUser, error)
}

// UserService backs the role-gated user directory and admin surfaces.
type UserService struct {
	users    repo.UserRepository
	searcher UserSearcher
	index    UserIndexer
	bg       *Background
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewUserService(users repo.UserRepository, searcher UserSearcher, index UserIndexer, bg *Background, logger logrus.FieldLogger, now func() time.Time) *UserService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if bg == nil {
		bg = NewBackground(0, logger)
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, searcher: searcher, index: index, bg: bg, logger: logger, now: now}
}

// SearchUsers returns nothing when search is not configured.
func (s *UserService) SearchUsers(ctx context.Context, q string, role entity.Role, size int) ([]entity.PublicUser, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, errs.New(errs.KindMalformed, "query must not be empty")
	}
	if s.searcher == nil {
		return []entity.PublicUser{}, nil
	}
	docs, err := s.searcher.Search(ctx, q, role, size)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "search users", err)
	}
	return docs, nil
}

func (s *UserService) ListUsers(ctx context.Context, f repo.ListFilter) ([]entity.PublicUser, error) {
	if f.Role != "" && !f.Role.IsValid() {
		return nil, errs.New(errs.KindMalformed, "unknown role")
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	users, err := s.users.List(ctx, f)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "list users", err)
	}
	out := make([]entity.PublicUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	return out, nil
}

// SetRole changes another user's role. Admins cannot change their own.
func (s *UserService) SetRole(ctx context.Context, actor *Identity, email string, role entity.Role) (entity.PublicUser, error) {
	if !role.IsValid() {
		return entity.PublicUser{}, errs.New(errs.KindMalformed, "unknown role")
	}
	email = entity.NormalizeEmail(email)
	if email == actor.User.Email {
		return entity.PublicUser{}, errs.New(errs.KindMalformed, "cannot change your own role")
	}
	return s.apply(ctx, actor, email, repo.UserPatch{Role: &role}, "role changed")
}

// SetActive (de)activates another user. Deactivation takes effect on the
// next request because the gate reloads the user for every token.
func (s *UserService) SetActive(ctx context.Context, actor *Identity, email string, active bool) (entity.PublicUser, error) {
	email = entity.NormalizeEmail(email)
	if email == actor.User.Email {
		return entity.PublicUser{}, errs.New(errs.KindMalformed, "cannot change your own status")
	}
	return s.apply(ctx, actor, email, repo.UserPatch{IsActive: &active}, "status changed")
}

func (s *UserService) apply(ctx context.Context, actor *Identity, email string, patch repo.UserPatch, event string) (entity.PublicUser, error) {
	patch.UpdatedAt = s.now().UTC()
	u, err := s.users.UpdateFields(ctx, email, patch)
	if err != nil {
		return entity.PublicUser{}, storeError(err, "admin update")
	}
	s.logger.WithFields(logrus.Fields{"actor": actor.User.ID, "user_id": u.ID}).Info(event)
	if s.index != nil {
		cp := *u
		s.bg.Go(ctx, "index_user", func(ctx context.Context) error { return s.index.Index(ctx, &cp) })
	}
	return u.Public(), nil
}
