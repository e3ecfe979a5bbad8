package container

import (
	"context"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/accessedu/portal-auth/config"
	"github.com/accessedu/portal-auth/internal/application"
	repo "github.com/accessedu/portal-auth/internal/domain/repository"
	"github.com/accessedu/portal-auth/pkg/helpers"
	"github.com/accessedu/portal-auth/pkg/mailer"
)

// app-level container to share constructed components across packages.
// The router wires its modules from these singletons.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	users       repo.UserRepository
	redisClient *redis.Client
	esClient    *elasticsearch.Client

	jwtManager *helpers.JWTManager
	hasher     *helpers.PasswordHasher
	dispatcher mailer.Dispatcher
	background *application.Background
	storePing  func(ctx context.Context) error
)

func SetConfig(c *config.Config)              { cfg = c }
func GetConfig() *config.Config               { return cfg }
func SetLogger(l *logrus.Logger)              { logger = l }
func GetLogger() *logrus.Logger               { return logger }
func SetUsers(r repo.UserRepository)          { users = r }
func GetUsers() repo.UserRepository           { return users }
func SetRedis(r *redis.Client)                { redisClient = r }
func GetRedis() *redis.Client                 { return redisClient }
func SetES(c *elasticsearch.Client)           { esClient = c }
func GetES() *elasticsearch.Client            { return esClient }
func SetJWT(m *helpers.JWTManager)            { jwtManager = m }
func GetJWT() *helpers.JWTManager             { return jwtManager }
func SetHasher(h *helpers.PasswordHasher)     { hasher = h }
func GetHasher() *helpers.PasswordHasher      { return hasher }
func SetDispatcher(d mailer.Dispatcher)       { dispatcher = d }
func GetDispatcher() mailer.Dispatcher        { return dispatcher }
func SetBackground(b *application.Background) { background = b }
func GetBackground() *application.Background  { return background }

// SetStorePing registers the health probe of the configured credential store.
func SetStorePing(p func(ctx context.Context) error) { storePing = p }
func GetStorePing() func(ctx context.Context) error  { return storePing }
