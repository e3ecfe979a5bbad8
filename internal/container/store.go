package container

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/accessedu/portal-auth/config"
	repo "github.com/accessedu/portal-auth/internal/domain/repository"
	"github.com/accessedu/portal-auth/internal/infrastructure/memory"
	mongoinfra "github.com/accessedu/portal-auth/internal/infrastructure/mongo"
	pginfra "github.com/accessedu/portal-auth/internal/infrastructure/postgres"
)

// Store is an opened credential store with its health probe and closer.
type Store struct {
	Users repo.UserRepository
	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStore connects the credential store selected by STORE_DRIVER and
// prepares its schema (migrations for postgres, indexes for mongo).
func OpenStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := pginfra.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pginfra.RunMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return &Store{Users: pginfra.NewUserRepository(pool), Ping: pool.Ping, Close: pool.Close}, nil

	case "mongo":
		client, err := mongoinfra.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		users := mongoinfra.NewUserRepository(client.Database(cfg.MongoDatabase), cfg.MongoCollection)
		if err := users.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return &Store{
			Users: users,
			Ping:  func(ctx context.Context) error { return client.Ping(ctx, nil) },
			Close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case "memory":
		logger.Warn("using in-memory credential store; accounts are lost on restart")
		return &Store{
			Users: memory.NewUserRepository(),
			Ping:  func(context.Context) error { return nil },
			Close: func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}
