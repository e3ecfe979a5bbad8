package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/accessedu/portal-auth/config"
	"github.com/accessedu/portal-auth/internal/container"
	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/repository"
	"github.com/accessedu/portal-auth/pkg/helpers"
)

// seed creates the first admin account, or promotes and reactivates an
// existing account with the same email.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)

	email := entity.NormalizeEmail(os.Getenv("SEED_ADMIN_EMAIL"))
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		logger.Fatal("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required")
	}
	if cfg.StoreDriver == "memory" {
		logger.Fatal("seeding the memory store has no effect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := container.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open credential store")
	}
	defer store.Close()

	policy := helpers.PasswordPolicy{
		MinLength:        cfg.PasswordMinLength,
		RequireMixedCase: cfg.PasswordRequireMixed,
		RequireDigit:     cfg.PasswordRequireDigit,
		RequireSymbol:    cfg.PasswordRequireSymbol,
	}
	if err := policy.Check(password); err != nil {
		logger.WithError(err).Fatal("SEED_ADMIN_PASSWORD rejected")
	}
	hash, err := helpers.NewPasswordHasher(cfg.BcryptCost).Hash(password)
	if err != nil {
		logger.WithError(err).Fatal("failed to hash password")
	}

	now := time.Now().UTC()
	admin := &entity.User{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      hash,
		Role:              entity.RoleAdmin,
		FullName:          "Administrator",
		PreferredLanguage: "en",
		IsActive:          true,
		IsVerified:        true,
		VerifiedAt:        &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	u, err := store.Users.Insert(ctx, admin)
	if errors.Is(err, repository.ErrConflict) {
		role, active := entity.RoleAdmin, true
		u, err = store.Users.UpdateFields(ctx, email, repository.UserPatch{Role: &role, IsActive: &active, UpdatedAt: now})
		if err != nil {
			logger.WithError(err).Fatal("failed to promote existing user")
		}
		logger.WithField("user_id", u.ID).Info("existing user promoted to admin")
		return
	}
	if err != nil {
		logger.WithError(err).Fatal("failed to seed admin")
	}
	logger.WithField("user_id", u.ID).Info("admin seeded")
}
