package router

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/accessedu/portal-auth/internal/application"
	"github.com/accessedu/portal-auth/internal/container"
	"github.com/accessedu/portal-auth/internal/infrastructure/redisstore"
	"github.com/accessedu/portal-auth/internal/infrastructure/search"
	handlers "github.com/accessedu/portal-auth/internal/interface/http"
	"github.com/accessedu/portal-auth/internal/interface/middleware"
	"github.com/accessedu/portal-auth/internal/router/modules"
	"github.com/accessedu/portal-auth/pkg/helpers"
	mailtpl "github.com/accessedu/portal-auth/pkg/mailer/templates"
)

type Deps struct {
	Authz   *application.Authorizer
	Auth    *application.AuthService
	Users   *application.UserService
	Cookies *helpers.Manager // nil unless cookie auth is enabled
}

// BuildDeps constructs the services from the container singletons. Redis and
// Elasticsearch are optional; without them logout revocation and search are
// disabled.
func BuildDeps() Deps {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	users := container.GetUsers()
	bg := container.GetBackground()

	// interfaces stay nil (not typed-nil) when the backend is absent
	var revoker application.TokenRevoker
	if rdb := container.GetRedis(); rdb != nil {
		revoker = redisstore.NewRevocationStore(rdb)
	}
	var (
		indexer  application.UserIndexer
		searcher application.UserSearcher
	)
	if es := container.GetES(); es != nil {
		idx := search.NewUserIndex(es, cfg.ESUsersIndex)
		indexer, searcher = idx, idx
	}

	authz := application.NewAuthorizer(users, container.GetJWT(), revoker, logger)
	authSvc := application.NewAuthService(application.AuthDeps{
		Users:      users,
		Hasher:     container.GetHasher(),
		Tokens:     container.GetJWT(),
		Mail:       container.GetDispatcher(),
		Revoker:    revoker,
		Index:      indexer,
		Background: bg,
		Logger:     logger,
	}, application.AuthConfig{
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		ResetTTL:   cfg.ResetTTL,
		VerifyTTL:  cfg.VerifyTTL,
		Policy: helpers.PasswordPolicy{
			MinLength:        cfg.PasswordMinLength,
			RequireMixedCase: cfg.PasswordRequireMixed,
			RequireDigit:     cfg.PasswordRequireDigit,
			RequireSymbol:    cfg.PasswordRequireSymbol,
		},
		Brand:      mailtpl.BrandFromConfig(cfg),
		VerifyLink: cfg.VerifyEmailLink,
		ResetLink:  cfg.ResetPasswordLink,
	})
	userSvc := application.NewUserService(users, searcher, indexer, bg, logger, nil)

	var cookies *helpers.Manager
	if cfg.CookieAuthEnabled {
		cookies = helpers.NewCookie(cfg.CookieDomain, cfg.CookieSecure)
	}
	return Deps{Authz: authz, Auth: authSvc, Users: userSvc, Cookies: cookies}
}

// InitModules mounts every module on r. Call once at startup after the
// container is populated.
func InitModules(r *Registry) {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	d := BuildDeps()

	var limits middleware.Counter
	if rdb := container.GetRedis(); rdb != nil {
		limits = redisstore.NewRateCounter(rdb)
	}

	r.AddRoot(modules.NewSystemModule(cfg.CompanyName, healthChecks()))
	r.Add(modules.NewAuthModule(handlers.NewAuthHandler(d.Auth, logger, d.Cookies), d.Authz, limits, cfg.CookieAuthEnabled))
	r.Add(modules.NewUserModule(handlers.NewUserHandler(d.Users, logger), d.Authz, limits, cfg.CookieAuthEnabled))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(limits))
	}
}

func healthChecks() map[string]modules.Pinger {
	checks := map[string]modules.Pinger{}
	if p := container.GetStorePing(); p != nil {
		checks["store"] = p
	}
	if rdb := container.GetRedis(); rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if es := container.GetES(); es != nil {
		checks["elasticsearch"] = func(ctx context.Context) error { return pingES(ctx, es) }
	}
	return checks
}

func pingES(ctx context.Context, es *elasticsearch.Client) error {
	res, err := es.Ping(es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}
