package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/repository"
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, role, full_name, preferred_language,
	dyslexia_font, high_contrast, text_to_speech, is_active, is_verified,
	verified_at, last_login, login_count, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Insert(ctx context.Context, u *entity.User) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, role, full_name, preferred_language,
			dyslexia_font, high_contrast, text_to_speech, is_active, is_verified,
			verified_at, last_login, login_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+userColumns,
		u.ID, u.Email, u.PasswordHash, string(u.Role), u.FullName, u.PreferredLanguage,
		u.Accessibility.DyslexiaFont, u.Accessibility.HighContrast, u.Accessibility.TextToSpeech,
		u.IsActive, u.IsVerified, u.VerifiedAt, u.LastLogin, u.LoginCount, u.CreatedAt, u.UpdatedAt)

	out, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return out, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UpdateFields(ctx context.Context, email string, p repository.UserPatch) (*entity.User, error) {
	var role *string
	if p.Role != nil {
		s := string(*p.Role)
		role = &s
	}
	var inc int64
	if p.IncLoginCount {
		inc = 1
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			full_name          = COALESCE($2, full_name),
			preferred_language = COALESCE($3, preferred_language),
			dyslexia_font      = COALESCE($4, dyslexia_font),
			high_contrast      = COALESCE($5, high_contrast),
			text_to_speech     = COALESCE($6, text_to_speech),
			password_hash      = COALESCE($7, password_hash),
			role               = COALESCE($8, role),
			is_active          = COALESCE($9, is_active),
			is_verified        = COALESCE($10, is_verified),
			verified_at        = COALESCE($11, verified_at),
			last_login         = COALESCE($12, last_login),
			login_count        = login_count + $13,
			updated_at         = GREATEST(updated_at, $14)
		WHERE lower(email) = lower($1)
		  AND ($15 = FALSE OR verified_at IS NULL)
		RETURNING `+userColumns,
		email, p.FullName, p.PreferredLanguage, p.DyslexiaFont, p.HighContrast, p.TextToSpeech,
		p.PasswordHash, role, p.IsActive, p.IsVerified, p.VerifiedAt, p.LastLogin,
		inc, p.UpdatedAt, p.OnlyIfUnverified)

	u, err := scanUser(row)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if !p.OnlyIfUnverified {
		return nil, repository.ErrNotFound
	}
	// Guarded update matched nothing: tell a missing row from a failed guard.
	if _, findErr := r.FindByEmail(ctx, email); findErr != nil {
		return nil, findErr
	}
	return nil, repository.ErrPrecondition
}

func (r *UserRepository) List(ctx context.Context, f repository.ListFilter) ([]entity.User, error) {
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 = '' OR role = $1)
		ORDER BY created_at, email
		LIMIT $2 OFFSET $3`, string(f.Role), f.NormalizeLimit(), offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []entity.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.FullName, &u.PreferredLanguage,
		&u.Accessibility.DyslexiaFont, &u.Accessibility.HighContrast, &u.Accessibility.TextToSpeech,
		&u.IsActive, &u.IsVerified, &u.VerifiedAt, &u.LastLogin, &u.LoginCount,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = entity.Role(role)
	return u, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
