package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/accessedu/portal-auth/internal/application"
	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/infrastructure/memory"
	"github.com/accessedu/portal-auth/internal/infrastructure/redisstore"
	handlers "github.com/accessedu/portal-auth/internal/interface/http"
	"github.com/accessedu/portal-auth/internal/interface/middleware"
	"github.com/accessedu/portal-auth/internal/router/modules"
	"github.com/accessedu/portal-auth/pkg/helpers"
	"github.com/accessedu/portal-auth/pkg/mailer"
	mailtpl "github.com/accessedu/portal-auth/pkg/mailer/templates"
	"github.com/accessedu/portal-auth/pkg/validation"
)

const goodPassword = "Password123!"

func init() {
	gin.SetMode(gin.TestMode)
	validation.Init()
}

type fakeMail struct {
	mu   sync.Mutex
	jobs []mailer.EmailJob
}

func (f *fakeMail) Dispatch(_ context.Context, job mailer.EmailJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeMail) last(template string) (mailer.EmailJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.jobs) - 1; i >= 0; i-- {
		if f.jobs[i].Template == template {
			return f.jobs[i], true
		}
	}
	return mailer.EmailJob{}, false
}

type server struct {
	engine *gin.Engine
	users  *memory.UserRepository
	hasher *helpers.PasswordHasher
	mail   *fakeMail
	bg     *application.Background
	tokens *helpers.JWTManager
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newServer(t *testing.T, cookieAuth bool) *server {
	t.Helper()
	logger, _ := test.NewNullLogger()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ring, err := helpers.NewKeyRing("k1", "handler-test-secret-0123456789abcdef", nil)
	require.NoError(t, err)
	tokens := helpers.NewJWTManager(ring, "portal-test", nil)

	s := &server{
		users:  memory.NewUserRepository(),
		hasher: helpers.NewPasswordHasher(bcrypt.MinCost),
		mail:   &fakeMail{},
		bg:     application.NewBackground(time.Second, logger),
		tokens: tokens,
	}
	revoker := redisstore.NewRevocationStore(rdb)
	authz := application.NewAuthorizer(s.users, tokens, revoker, logger)
	authSvc := application.NewAuthService(application.AuthDeps{
		Users:      s.users,
		Hasher:     s.hasher,
		Tokens:     tokens,
		Mail:       s.mail,
		Revoker:    revoker,
		Background: s.bg,
		Logger:     logger,
	}, application.AuthConfig{
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 168 * time.Hour,
		ResetTTL:   time.Hour,
		VerifyTTL:  72 * time.Hour,
		Policy:     helpers.PasswordPolicy{MinLength: 8, RequireMixedCase: true, RequireDigit: true},
		Brand:      mailtpl.Brand{CompanyName: "Portal", AppName: "portal"},
	})
	userSvc := application.NewUserService(s.users, nil, nil, s.bg, logger, nil)

	var cookies *helpers.Manager
	if cookieAuth {
		cookies = helpers.NewCookie("localhost", false)
	}

	r := gin.New()
	r.Use(middleware.RealIP(), middleware.RequestIDMiddleware())
	api := r.Group("/api")
	modules.NewAuthModule(handlers.NewAuthHandler(authSvc, logger, cookies), authz, redisstore.NewRateCounter(rdb), cookieAuth).Register(api)
	modules.NewUserModule(handlers.NewUserHandler(userSvc, logger), authz, redisstore.NewRateCounter(rdb), cookieAuth).Register(api)
	s.engine = r
	return s
}

func (s *server) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func (s *server) register(t *testing.T, email, password string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": email, "password": password, "confirm_password": password, "full_name": "Test User",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (s *server) login(t *testing.T, email, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	return res.AccessToken
}

// seed inserts a verified account with role directly into the store.
func (s *server) seed(t *testing.T, email string, role entity.Role) {
	t.Helper()
	hash, err := s.hasher.Hash(goodPassword)
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = s.users.Insert(context.Background(), &entity.User{
		ID: uuid.NewString(), Email: email, PasswordHash: hash, Role: role,
		PreferredLanguage: "en", IsActive: true, IsVerified: true, VerifiedAt: &now,
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
}

func TestAlice_RegisterLoginProfileChangePassword(t *testing.T) {
	s := newServer(t, false)

	w := s.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "Alice@Example.com", "password": goodPassword, "confirm_password": goodPassword,
		"full_name": "Alice", "preferred_language": "en",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")
	var created entity.PublicUser
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Equal(t, entity.RoleStudent, created.Role)
	assert.False(t, created.IsVerified)

	token := s.login(t, "alice@example.com", goodPassword)

	w = s.do(t, http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")
	assert.Contains(t, w.Body.String(), `"email":"alice@example.com"`)

	w = s.do(t, http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": goodPassword, "new_password": "NewPassword456!",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, application.MsgPasswordChanged, decode(t, w).Message)

	// the stamp in the old token no longer matches
	w = s.do(t, http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "alice@example.com", "password": goodPassword}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	s.login(t, "alice@example.com", "NewPassword456!")
}

func TestRegister_Errors(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "bob@example.com", goodPassword)

	w := s.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "BOB@example.com", "password": goodPassword, "confirm_password": goodPassword,
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, "email already registered", env.Message)
	assert.Equal(t, "conflict", env.Error.Code)

	w = s.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "not-an-email", "password": goodPassword, "confirm_password": goodPassword,
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env = decode(t, w)
	assert.Contains(t, env.Error.Details, "email")

	w = s.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "carol@example.com", "password": "short", "confirm_password": "short",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w).Error.Code)

	w = s.do(t, http.MethodPost, "/api/auth/register", "{", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_WrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "dave@example.com", goodPassword)

	wrong := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "dave@example.com", "password": "Nope12345!"}, "")
	unknown := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ghost@example.com", "password": "Nope12345!"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, decode(t, wrong).Message, decode(t, unknown).Message)
	assert.Equal(t, decode(t, wrong).Error.Code, decode(t, unknown).Error.Code)
}

func TestForgotPassword_RepliesIdentically(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "erin@example.com", goodPassword)

	known := s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "erin@example.com"}, "")
	unknown := s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nobody@example.com"}, "")
	garbage := s.do(t, http.MethodPost, "/api/auth/forgot-password", "not json", "")

	for _, w := range []*httptest.ResponseRecorder{known, unknown, garbage} {
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, known.Body.Bytes(), unknown.Body.Bytes())
	assert.Equal(t, known.Body.Bytes(), garbage.Body.Bytes())
	assert.Contains(t, known.Body.String(), application.MsgForgotPassword)

	s.bg.Wait()
	_, sent := s.mail.last(mailtpl.ResetPassword)
	assert.True(t, sent)
}

func TestResetPassword_FromEmailedLink(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "fay@example.com", goodPassword)
	s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "fay@example.com"}, "")
	s.bg.Wait()

	job, ok := s.mail.last(mailtpl.ResetPassword)
	require.True(t, ok)
	link, _ := job.Data["ResetURL"].(string)
	require.NotEmpty(t, link)

	body := map[string]string{"token": link, "new_password": "Fresh-Pass-789"}
	w := s.do(t, http.MethodPost, "/api/auth/reset-password", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s.login(t, "fay@example.com", "Fresh-Pass-789")

	w = s.do(t, http.MethodPost, "/api/auth/reset-password", body, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"token": "garbage", "new_password": "Fresh-Pass-789"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMe(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "gus@example.com", goodPassword)
	token := s.login(t, "gus@example.com", goodPassword)

	for _, field := range []string{"role", "email", "is_active", "password_hash"} {
		w := s.do(t, http.MethodPut, "/api/auth/me", `{"`+field+`": "admin"}`, token)
		assert.Equal(t, http.StatusBadRequest, w.Code, field)
	}

	w := s.do(t, http.MethodPut, "/api/auth/me", map[string]any{
		"full_name": "Gus G", "accessibility": map[string]bool{"dyslexia_font": true},
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var u entity.PublicUser
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &u))
	assert.Equal(t, "Gus G", u.FullName)
	assert.True(t, u.Accessibility.DyslexiaFont)
	assert.Equal(t, entity.RoleStudent, u.Role)

	w = s.do(t, http.MethodPut, "/api/auth/me", map[string]any{"preferred_language": "not a tag!"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangePassword_WrongCurrentIsBadRequest(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "hal@example.com", goodPassword)
	token := s.login(t, "hal@example.com", goodPassword)

	w := s.do(t, http.MethodPost, "/api/auth/change-password", map[string]string{
		"current_password": "Wrong-Pass-1", "new_password": "NewPassword456!",
	}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "incorrect current password", strings.ToLower(decode(t, w).Message))
}

func TestLogout_RevokesToken(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "ivy@example.com", goodPassword)
	token := s.login(t, "ivy@example.com", goodPassword)

	w := s.do(t, http.MethodPost, "/api/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, application.MsgLoggedOut, decode(t, w).Message)

	w = s.do(t, http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyEmail_SecondUseIsRejected(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "jan@example.com", goodPassword)
	s.bg.Wait()

	job, ok := s.mail.last(mailtpl.VerifyEmail)
	require.True(t, ok)
	tok, _ := job.Data["VerifyURL"].(string)
	require.NotEmpty(t, tok)

	w := s.do(t, http.MethodGet, "/api/auth/verify-email/"+tok, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, application.MsgEmailVerified, decode(t, w).Message)

	w = s.do(t, http.MethodGet, "/api/auth/verify-email/"+tok, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "already_verified", decode(t, w).Error.Code)

	w = s.do(t, http.MethodGet, "/api/auth/verify-email/not-a-token", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyEmail_TokenForMissingAccountIsBadRequest(t *testing.T) {
	s := newServer(t, false)
	tok, err := s.tokens.Issue("ghost@example.com", helpers.PurposeEmailVerification, time.Hour)
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/auth/verify-email/"+tok.Token, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestRateLimit_RefreshDoesNotSpendLoginBudget(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "max@example.com", goodPassword)

	for i := 0; i < 10; i++ {
		w := s.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": "junk"}, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "max@example.com", "password": goodPassword}, "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRefresh_RotatesPair(t *testing.T) {
	s := newServer(t, false)
	s.register(t, "kim@example.com", goodPassword)
	w := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "kim@example.com", "password": goodPassword}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var pair struct {
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &pair))

	w = s.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/refresh", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleGate(t *testing.T) {
	s := newServer(t, false)
	s.seed(t, "stu@example.com", entity.RoleStudent)
	s.seed(t, "tea@example.com", entity.RoleTeacher)
	s.seed(t, "adm@example.com", entity.RoleAdmin)
	student := s.login(t, "stu@example.com", goodPassword)
	teacher := s.login(t, "tea@example.com", goodPassword)
	admin := s.login(t, "adm@example.com", goodPassword)

	w := s.do(t, http.MethodGet, "/api/users/search?q=stu", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/users/search?q=stu", nil, student)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/users/search?q=stu", nil, teacher)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/users/search?q=stu", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/users/search?q=", nil, teacher)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/users", nil, teacher)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/users?role=student", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []entity.PublicUser
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "stu@example.com", listed[0].Email)

	w = s.do(t, http.MethodGet, "/api/admin/users?role=wizard", nil, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_RoleAndStatus(t *testing.T) {
	s := newServer(t, false)
	s.seed(t, "adm@example.com", entity.RoleAdmin)
	s.seed(t, "stu@example.com", entity.RoleStudent)
	admin := s.login(t, "adm@example.com", goodPassword)
	student := s.login(t, "stu@example.com", goodPassword)

	w := s.do(t, http.MethodPut, "/api/admin/users/stu@example.com/role", map[string]string{"role": "teacher"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"teacher"`)

	w = s.do(t, http.MethodPut, "/api/admin/users/stu@example.com/role", map[string]string{"role": "wizard"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/users/adm@example.com/role", map[string]string{"role": "student"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/users/missing@example.com/status", map[string]bool{"is_active": false}, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/users/stu@example.com/status", map[string]bool{"is_active": false}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// deactivation applies to tokens already issued
	w = s.do(t, http.MethodGet, "/api/auth/me", nil, student)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "stu@example.com", "password": goodPassword}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "account_deactivated", decode(t, w).Error.Code)
}

func TestCookieAuth(t *testing.T) {
	s := newServer(t, true)
	s.register(t, "lea@example.com", goodPassword)

	w := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "lea@example.com", "password": goodPassword}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var access, refresh *http.Cookie
	for _, c := range w.Result().Cookies() {
		switch c.Name {
		case helpers.AccessCookie:
			access = c
		case helpers.RefreshCookie:
			refresh = c
		}
	}
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(access)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(refresh)
	rec = httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
