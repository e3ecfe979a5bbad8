package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/errs"
	repo "github.com/accessedu/portal-auth/internal/domain/repository"
)

type fakeSearcher struct {
	gotQuery string
	gotRole  entity.Role
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, q string, role entity.Role, _ int) ([]entity.PublicUser, error) {
	f.gotQuery, f.gotRole = q, role
	if f.err != nil {
		return nil, f.err
	}
	return []entity.PublicUser{{Email: "bob@example.com"}}, nil
}

type recordingIndex struct {
	indexed chan string
}

func (r *recordingIndex) Index(_ context.Context, u *entity.User) error {
	r.indexed <- u.Email
	return nil
}

func newAdmin(t *testing.T, h *harness, email string) *Identity {
	t.Helper()
	h.register(t, email)
	role := entity.RoleAdmin
	_, err := h.users.UpdateFields(context.Background(), email, repo.UserPatch{Role: &role, UpdatedAt: h.clock.Now()})
	require.NoError(t, err)
	id, err := h.authz.Authenticate(context.Background(), h.login(t, email, goodPassword).AccessToken)
	require.NoError(t, err)
	return id
}

func TestUserService_SetRoleTakesEffectImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	idx := &recordingIndex{indexed: make(chan string, 4)}
	svc := NewUserService(h.users, nil, idx, h.bg, nil, h.clock.Now)

	admin := newAdmin(t, h, "root@example.com")
	h.register(t, "bob@example.com")
	bobTok := h.login(t, "bob@example.com", goodPassword).AccessToken

	pub, err := svc.SetRole(ctx, admin, "Bob@Example.com", entity.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleTeacher, pub.Role)
	h.bg.Wait()
	assert.Equal(t, "bob@example.com", <-idx.indexed)

	bob, err := h.authz.Authenticate(ctx, bobTok)
	require.NoError(t, err)
	assert.NoError(t, RequireRole(bob.User, entity.RoleTeacher))
}

func TestUserService_AdminCannotChangeSelf(t *testing.T) {
	h := newHarness(t)
	svc := NewUserService(h.users, nil, nil, h.bg, nil, h.clock.Now)
	admin := newAdmin(t, h, "root@example.com")

	_, err := svc.SetRole(context.Background(), admin, "root@example.com", entity.RoleStudent)
	assert.Equal(t, errs.KindMalformed, errs.KindOf(err))
	_, err = svc.SetActive(context.Background(), admin, "root@example.com", false)
	assert.Equal(t, errs.KindMalformed, errs.KindOf(err))
}

func TestUserService_SetActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewUserService(h.users, nil, nil, h.bg, nil, h.clock.Now)
	admin := newAdmin(t, h, "root@example.com")
	h.register(t, "bob@example.com")
	bobTok := h.login(t, "bob@example.com", goodPassword).AccessToken

	_, err := svc.SetActive(ctx, admin, "bob@example.com", false)
	require.NoError(t, err)
	_, err = h.authz.Authenticate(ctx, bobTok)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	_, err = svc.SetActive(ctx, admin, "ghost@example.com", false)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestUserService_SetRoleRejectsUnknownRole(t *testing.T) {
	h := newHarness(t)
	svc := NewUserService(h.users, nil, nil, h.bg, nil, h.clock.Now)
	admin := newAdmin(t, h, "root@example.com")

	_, err := svc.SetRole(context.Background(), admin, "bob@example.com", entity.Role("janitor"))
	assert.Equal(t, errs.KindMalformed, errs.KindOf(err))
}

func TestUserService_ListUsers(t *testing.T) {
	h := newHarness(t)
	svc := NewUserService(h.users, nil, nil, h.bg, nil, h.clock.Now)
	h.register(t, "a@example.com")
	h.register(t, "b@example.com")

	all, err := svc.ListUsers(context.Background(), repo.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	teachers, err := svc.ListUsers(context.Background(), repo.ListFilter{Role: entity.RoleTeacher})
	require.NoError(t, err)
	assert.Empty(t, teachers)

	_, err = svc.ListUsers(context.Background(), repo.ListFilter{Role: "janitor"})
	assert.Equal(t, errs.KindMalformed, errs.KindOf(err))
}

func TestUserService_SearchUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	disabled := NewUserService(h.users, nil, nil, h.bg, nil, h.clock.Now)
	got, err := disabled.SearchUsers(ctx, "bob", "", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	fs := &fakeSearcher{}
	svc := NewUserService(h.users, fs, nil, h.bg, nil, h.clock.Now)
	got, err = svc.SearchUsers(ctx, "  bob ", entity.RoleStudent, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "bob", fs.gotQuery)
	assert.Equal(t, entity.RoleStudent, fs.gotRole)

	_, err = svc.SearchUsers(ctx, " ", "", 10)
	assert.Equal(t, errs.KindMalformed, errs.KindOf(err))

	fs.err = errors.New("cluster red")
	_, err = svc.SearchUsers(ctx, "bob", "", 10)
	assert.Equal(t, errs.KindInternal, errs.KindOf(err))
	assert.Equal(t, "internal error", errs.MessageOf(err))
}
