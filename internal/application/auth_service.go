package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/errs"
	repo "github.com/accessedu/portal-auth/internal/domain/repository"
	"github.com/accessedu/portal-auth/pkg/helpers"
	"github.com/accessedu/portal-auth/pkg/mailer"
	mailtpl "github.com/accessedu/portal-auth/pkg/mailer/templates"
)

// Public messages shared with the HTTP layer.
const (
	MsgForgotPassword   = "If the email exists, a password reset link has been sent"
	MsgPasswordChanged  = "Password changed successfully"
	MsgPasswordReset    = "Password has been reset"
	MsgEmailVerified    = "Email verified successfully"
	MsgVerificationSent = "Verification email sent"
	MsgLoggedOut        = "Successfully logged out"
)

var (
	errPasswordMismatch   = errs.New(errs.KindMalformed, "passwords do not match")
	errInvalidEmail       = errs.New(errs.KindMalformed, "invalid email address")
	errWrongPassword      = errs.New(errs.KindInvalidCredentials, "incorrect current password")
	errInvalidResetToken  = errs.New(errs.KindMalformed, "invalid or expired reset token")
	errInvalidVerifyToken = errs.New(errs.KindMalformed, "invalid verification token")
)

// UserIndexer mirrors users into the search index. Optional.
type UserIndexer interface {
	Index(ctx context.Context, u *entity.User) error
}

// AuthConfig carries lifetimes, password rules and link builders.
type AuthConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	VerifyTTL  time.Duration // 0: verification links never expire

	Policy helpers.PasswordPolicy
	Brand  mailtpl.Brand

	VerifyLink func(token string) string
	ResetLink  func(token string) string
}

// AuthDeps are the collaborators of AuthService. Mail, Revoker and Index
// may be nil.
type AuthDeps struct {
	Users      repo.UserRepository
	Hasher     *helpers.PasswordHasher
	Tokens     *helpers.JWTManager
	Mail       mailer.Dispatcher
	Revoker    TokenRevoker
	Index      UserIndexer
	Background *Background
	Logger     logrus.FieldLogger
	Now        func() time.Time
}

type AuthService struct {
	users   repo.UserRepository
	hasher  *helpers.PasswordHasher
	tokens  *helpers.JWTManager
	mail    mailer.Dispatcher
	revoker TokenRevoker
	index   UserIndexer
	bg      *Background
	logger  logrus.FieldLogger
	now     func() time.Time
	cfg     AuthConfig

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(d AuthDeps, cfg AuthConfig) *AuthService {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Background == nil {
		d.Background = NewBackground(0, d.Logger)
	}
	if cfg.VerifyLink == nil {
		cfg.VerifyLink = func(t string) string { return t }
	}
	if cfg.ResetLink == nil {
		cfg.ResetLink = func(t string) string { return t }
	}
	return &AuthService{
		users:   d.Users,
		hasher:  d.Hasher,
		tokens:  d.Tokens,
		mail:    d.Mail,
		revoker: d.Revoker,
		index:   d.Index,
		bg:      d.Background,
		logger:  d.Logger,
		now:     d.Now,
		cfg:     cfg,
	}
}

type RegisterInput struct {
	Email             string
	Password          string
	ConfirmPassword   string
	FullName          string
	PreferredLanguage string
	Accessibility     entity.AccessibilityPrefs
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	AccessToken      string            `json:"access_token"`
	RefreshToken     string            `json:"refresh_token"`
	TokenType        string            `json:"token_type"`
	ExpiresInSeconds int64             `json:"expires_in_seconds"`
	User             entity.PublicUser `json:"user"`

	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// ProfileInput is a partial profile update; nil fields are kept.
type ProfileInput struct {
	FullName          *string
	PreferredLanguage *string
	DyslexiaFont      *bool
	HighContrast      *bool
	TextToSpeech      *bool
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (entity.PublicUser, error) {
	email := entity.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return entity.PublicUser{}, errInvalidEmail
	}
	if in.Password != in.ConfirmPassword {
		return entity.PublicUser{}, errPasswordMismatch
	}
	if err := s.cfg.Policy.Check(in.Password); err != nil {
		return entity.PublicUser{}, errs.New(errs.KindValidation, err.Error())
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return entity.PublicUser{}, errs.Wrap(errs.KindInternal, "hash password", err)
	}

	lang := strings.TrimSpace(in.PreferredLanguage)
	if lang == "" {
		lang = "en"
	}
	now := s.now().UTC()
	created, err := s.users.Insert(ctx, &entity.User{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      hash,
		Role:              entity.RoleStudent,
		FullName:          strings.TrimSpace(in.FullName),
		PreferredLanguage: lang,
		Accessibility:     in.Accessibility,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return entity.PublicUser{}, errs.ErrConflict
		}
		return entity.PublicUser{}, errs.Wrap(errs.KindInternal, "insert user", err)
	}
	count(metricRegistrations)
	s.logger.WithField("user_id", created.ID).Info("user registered")

	if err := s.sendVerification(ctx, created); err != nil {
		s.logger.WithError(err).WithField("user_id", created.ID).Warn("verification email not sent")
	}
	s.reindex(ctx, created)
	return created.Public(), nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = entity.NormalizeEmail(email)
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, errs.Wrap(errs.KindInternal, "find user", err)
		}
		// Spend the same bcrypt work as a real check.
		s.hasher.Verify(password, s.dummy())
		count(metricLoginFailures)
		return nil, errs.ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		count(metricLoginFailures)
		return nil, errs.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, errs.ErrAccountDeactivated
	}

	now := s.now().UTC()
	patch := repo.UserPatch{LastLogin: &now, IncLoginCount: true, UpdatedAt: now}
	if s.hasher.NeedsRehash(u.PasswordHash) {
		if h, err := s.hasher.Hash(password); err == nil {
			patch.PasswordHash = &h
		}
	}
	// Stats and rehash are best-effort; the stamp must follow whichever hash is stored.
	if updated, err := s.users.UpdateFields(ctx, u.Email, patch); err != nil {
		s.logger.WithError(err).WithField("user_id", u.ID).Warn("login bookkeeping failed")
	} else {
		u = updated
	}

	res, err := s.issuePair(u)
	if err != nil {
		return nil, err
	}
	count(metricLogins)
	return res, nil
}

// Refresh exchanges a refresh token for a new pair and retires the old one.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tokens.Verify(refreshToken, helpers.PurposeRefresh)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnauthenticated, errs.ErrUnauthenticated.Message, err)
	}
	u, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil || !u.IsActive || claims.PasswordStamp != helpers.PasswordStamp(u.PasswordHash) {
		return nil, errs.Wrap(errs.KindUnauthenticated, errs.ErrUnauthenticated.Message, err)
	}

	// only the caller that retires the presented token gets a new pair
	if s.revoker != nil {
		won, err := s.revoker.Claim(ctx, claims.ID, s.remaining(claims, s.cfg.RefreshTTL))
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "revoke refresh token", err)
		}
		if !won {
			return nil, errs.ErrUnauthenticated
		}
	}
	res, err := s.issuePair(u)
	if err != nil {
		return nil, err
	}
	count(metricRefreshes)
	return res, nil
}

func (s *AuthService) GetProfile(_ context.Context, id *Identity) entity.PublicUser {
	return id.User.Public()
}

func (s *AuthService) UpdateProfile(ctx context.Context, id *Identity, in ProfileInput) (entity.PublicUser, error) {
	patch := repo.UserPatch{
		FullName:          in.FullName,
		PreferredLanguage: in.PreferredLanguage,
		DyslexiaFont:      in.DyslexiaFont,
		HighContrast:      in.HighContrast,
		TextToSpeech:      in.TextToSpeech,
		UpdatedAt:         s.now().UTC(),
	}
	if patch.FullName != nil {
		v := strings.TrimSpace(*patch.FullName)
		patch.FullName = &v
	}
	u, err := s.users.UpdateFields(ctx, id.User.Email, patch)
	if err != nil {
		return entity.PublicUser{}, storeError(err, "update profile")
	}
	s.reindex(ctx, u)
	return u.Public(), nil
}

func (s *AuthService) ChangePassword(ctx context.Context, id *Identity, current, next string) error {
	if !s.hasher.Verify(current, id.User.PasswordHash) {
		return errWrongPassword
	}
	if err := s.cfg.Policy.Check(next); err != nil {
		return errs.New(errs.KindValidation, err.Error())
	}
	u, err := s.setPassword(ctx, id.User.Email, next)
	if err != nil {
		return err
	}
	count(metricPasswordChanges)
	s.logger.WithField("user_id", u.ID).Info("password changed")
	s.notifyPasswordChanged(ctx, u)
	return nil
}

// ForgotPassword never reports anything to the caller. The lookup, token and
// dispatch all happen in the background so existing and unknown addresses
// take the same path on the request side.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) {
	email = entity.NormalizeEmail(email)
	if email == "" {
		return
	}
	s.bg.Go(ctx, "forgot_password", func(ctx context.Context) error {
		u, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		if !u.IsActive {
			return nil
		}
		tok, err := s.tokens.Issue(u.Email, helpers.PurposePasswordReset, s.cfg.ResetTTL,
			helpers.WithPasswordStamp(helpers.PasswordStamp(u.PasswordHash)))
		if err != nil {
			return err
		}
		return s.deliver(ctx, mailer.EmailJob{
			To:       u.Email,
			Template: mailtpl.ResetPassword,
			Data: mailtpl.NewResetPasswordData(s.cfg.Brand, u.FullName, u.Email, s.cfg.ResetLink(tok.Token),
				mailtpl.WithExpiresAt(tok.ExpiresAt)),
		})
	})
}

// ResetPassword completes the forgot-password flow. A reset token is bound
// to the hash it was issued against, so it stops working once used.
func (s *AuthService) ResetPassword(ctx context.Context, token, next string) error {
	claims, err := s.tokens.Verify(token, helpers.PurposePasswordReset)
	if err != nil {
		return errs.Wrap(errs.KindMalformed, errInvalidResetToken.Message, err)
	}
	u, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errInvalidResetToken
		}
		return errs.Wrap(errs.KindInternal, "find user", err)
	}
	if !u.IsActive || claims.PasswordStamp != helpers.PasswordStamp(u.PasswordHash) {
		return errInvalidResetToken
	}
	if err := s.cfg.Policy.Check(next); err != nil {
		return errs.New(errs.KindValidation, err.Error())
	}
	u, err = s.setPassword(ctx, u.Email, next)
	if err != nil {
		return err
	}
	count(metricPasswordResets)
	s.logger.WithField("user_id", u.ID).Info("password reset")
	s.notifyPasswordChanged(ctx, u)
	return nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (entity.PublicUser, error) {
	claims, err := s.tokens.Verify(token, helpers.PurposeEmailVerification)
	if err != nil {
		return entity.PublicUser{}, errs.Wrap(errs.KindMalformed, errInvalidVerifyToken.Message, err)
	}
	now := s.now().UTC()
	yes := true
	u, err := s.users.UpdateFields(ctx, claims.Subject, repo.UserPatch{
		IsVerified:       &yes,
		VerifiedAt:       &now,
		OnlyIfUnverified: true,
		UpdatedAt:        now,
	})
	if err != nil {
		if errors.Is(err, repo.ErrPrecondition) {
			return entity.PublicUser{}, errs.ErrAlreadyVerified
		}
		return entity.PublicUser{}, storeError(err, "verify email")
	}
	count(metricVerifications)
	return u.Public(), nil
}

func (s *AuthService) ResendVerification(ctx context.Context, id *Identity) error {
	if id.User.IsVerified {
		return errs.ErrAlreadyVerified
	}
	if err := s.sendVerification(ctx, id.User); err != nil {
		return errs.Wrap(errs.KindInternal, "issue verification token", err)
	}
	return nil
}

// Logout denylists the access token and, when given, the caller's refresh
// token. Without a revocation store tokens stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, id *Identity, refreshToken string) error {
	count(metricLogouts)
	if s.revoker == nil {
		return nil
	}
	if err := s.revoker.Revoke(ctx, id.Claims.ID, s.remaining(id.Claims, s.cfg.AccessTTL)); err != nil {
		return errs.Wrap(errs.KindInternal, "revoke access token", err)
	}
	if refreshToken == "" {
		return nil
	}
	rc, err := s.tokens.Verify(refreshToken, helpers.PurposeRefresh)
	if err != nil || rc.Subject != id.User.Email {
		return nil
	}
	if err := s.revoker.Revoke(ctx, rc.ID, s.remaining(rc, s.cfg.RefreshTTL)); err != nil {
		return errs.Wrap(errs.KindInternal, "revoke refresh token", err)
	}
	return nil
}

func (s *AuthService) issuePair(u *entity.User) (*LoginResult, error) {
	stamp := helpers.PasswordStamp(u.PasswordHash)
	access, err := s.tokens.Issue(u.Email, helpers.PurposeAccess, s.cfg.AccessTTL,
		helpers.WithRole(string(u.Role)), helpers.WithPasswordStamp(stamp))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "issue access token", err)
	}
	refresh, err := s.tokens.Issue(u.Email, helpers.PurposeRefresh, s.cfg.RefreshTTL,
		helpers.WithPasswordStamp(stamp))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "issue refresh token", err)
	}
	return &LoginResult{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		TokenType:        "bearer",
		ExpiresInSeconds: int64(s.cfg.AccessTTL / time.Second),
		User:             u.Public(),
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *AuthService) setPassword(ctx context.Context, email, plain string) (*entity.User, error) {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "hash password", err)
	}
	u, err := s.users.UpdateFields(ctx, email, repo.UserPatch{PasswordHash: &hash, UpdatedAt: s.now().UTC()})
	if err != nil {
		return nil, storeError(err, "update password")
	}
	return u, nil
}

func (s *AuthService) sendVerification(ctx context.Context, u *entity.User) error {
	tok, err := s.tokens.Issue(u.Email, helpers.PurposeEmailVerification, s.cfg.VerifyTTL)
	if err != nil {
		return err
	}
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.VerifyEmail,
		Data: mailtpl.NewVerifyEmailData(s.cfg.Brand, u.FullName, u.Email, s.cfg.VerifyLink(tok.Token),
			mailtpl.WithExpiresAt(tok.ExpiresAt)),
	}
	s.bg.Go(ctx, "verify_email", func(ctx context.Context) error { return s.deliver(ctx, job) })
	return nil
}

func (s *AuthService) notifyPasswordChanged(ctx context.Context, u *entity.User) {
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.PasswordChanged,
		Data:     mailtpl.NewPasswordChangedData(s.cfg.Brand, u.FullName, u.Email, mailtpl.WithTime(s.now())),
	}
	s.bg.Go(ctx, "password_changed", func(ctx context.Context) error { return s.deliver(ctx, job) })
}

// deliver runs inside a background job.
func (s *AuthService) deliver(ctx context.Context, job mailer.EmailJob) error {
	if s.mail == nil {
		return nil
	}
	if err := s.mail.Dispatch(ctx, job); err != nil {
		count(metricEmailFailures)
		return err
	}
	count(metricEmailsQueued)
	return nil
}

func (s *AuthService) reindex(ctx context.Context, u *entity.User) {
	if s.index == nil {
		return
	}
	cp := *u
	s.bg.Go(ctx, "index_user", func(ctx context.Context) error { return s.index.Index(ctx, &cp) })
}

// remaining is how long a token would still be accepted; fallback covers
// tokens without exp.
func (s *AuthService) remaining(c *helpers.Claims, fallback time.Duration) time.Duration {
	exp := c.ExpiresAtTime()
	if exp.IsZero() {
		return fallback
	}
	return exp.Sub(s.now())
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

func storeError(err error, op string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return errs.New(errs.KindNotFound, "user not found")
	}
	return errs.Wrap(errs.KindInternal, op, err)
}
