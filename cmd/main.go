package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/accessedu/portal-auth/config"
	"github.com/accessedu/portal-auth/internal/application"
	"github.com/accessedu/portal-auth/internal/container"
	"github.com/accessedu/portal-auth/internal/infrastructure/search"
	"github.com/accessedu/portal-auth/internal/interface/middleware"
	"github.com/accessedu/portal-auth/internal/router"
	"github.com/accessedu/portal-auth/pkg/helpers"
	"github.com/accessedu/portal-auth/pkg/mailer"
	"github.com/accessedu/portal-auth/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx := context.Background()

	// Credential store
	store, err := container.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open credential store")
	}
	defer store.Close()
	logger.WithField("driver", cfg.StoreDriver).Info("credential store ready")

	// Redis: token denylist and rate limits; optional
	if cfg.RedisAddr != "" {
		rdb, err := helpers.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable; logout revocation and rate limiting disabled")
		} else {
			defer func() { _ = rdb.Close() }()
			container.SetRedis(rdb)
		}
	}

	// Elasticsearch: user directory search; optional
	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := search.NewClient(search.ClientConfig{Addresses: addrs, Username: cfg.ElasticsearchUser, Password: cfg.ElasticsearchPass})
		if err != nil {
			logger.WithError(err).Warn("elasticsearch client init failed; search disabled")
		} else {
			container.SetES(es)
		}
	}

	// Email dispatch
	dispatcher, closeMail := newDispatcher(cfg, logger)
	defer closeMail()

	// JWT
	previous, _ := cfg.PreviousKeys() // validated above
	keys, err := helpers.NewKeyRing(cfg.JWTKeyID, cfg.JWTSecret, previous)
	if err != nil {
		logger.WithError(err).Fatal("invalid signing keys")
	}

	bg := application.NewBackground(cfg.MailDispatchTimeout, logger)

	// Provide singletons to container for registry auto-wiring
	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetUsers(store.Users)
	container.SetStorePing(store.Ping)
	container.SetJWT(helpers.NewJWTManager(keys, cfg.JWTIssuer, nil))
	container.SetHasher(helpers.NewPasswordHasher(cfg.BcryptCost))
	container.SetDispatcher(dispatcher)
	container.SetBackground(bg)

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RealIP())
	r.Use(middleware.RequestIDMiddleware())
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	r.Use(cors.New(corsCfg))
	if cfg.HTTPLogEnabled {
		r.Use(gin.Logger())
	}

	reg := router.NewRegistry(r)
	router.InitModules(reg)
	reg.RegisterAll()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	// let queued emails and index updates finish
	bg.Wait()
	logger.Info("server exited properly")
}

// newDispatcher picks the email transport: the RabbitMQ queue when
// configured, Mailgun directly otherwise, or a logging no-op when sending
// is disabled.
func newDispatcher(cfg *config.Config, logger *logrus.Logger) (mailer.Dispatcher, func()) {
	if !cfg.MailSendEnabled {
		logger.Info("MAIL_SEND_ENABLED=false; emails are logged, not sent")
		return mailer.LogDispatcher{Logger: logger}, func() {}
	}
	if cfg.RabbitMQURL != "" {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err == nil {
			return pub, pub.Close
		}
		logger.WithError(err).Warn("rabbitmq unavailable; sending email directly")
	}
	if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" {
		logger.Warn("mailgun not configured; emails are logged, not sent")
		return mailer.LogDispatcher{Logger: logger}, func() {}
	}
	return mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender), func() {}
}
