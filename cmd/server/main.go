package main // Entry point for the Finding Memos auth backend

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/rm-info/finding-memos/internal/config"
	"github.com/rm-info/finding-memos/internal/database"
	"github.com/rm-info/finding-memos/internal/handler"
	"github.com/rm-info/finding-memos/internal/limiter"
	"github.com/rm-info/finding-memos/internal/middleware"
	"github.com/rm-info/finding-memos/internal/queue"
	"github.com/rm-info/finding-memos/internal/repository"
	"github.com/rm-info/finding-memos/internal/router"
	"github.com/rm-info/finding-memos/internal/service"
)

func main() {
	cfg := config.Load()
	if cfg.Env == "prod" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logrus.WithError(err).Fatal("database connection failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(ctx, db); err != nil {
		logrus.WithError(err).Fatal("database migration failed")
	}
	cancel()

	rdb := config.NewRedisClient()

	// Repositories and services.
	usersRepo := repository.NewUserRepo(db)
	tokensRepo := repository.NewTokenRepo(db)
	sessionsRepo := repository.NewSessionRepo(db)
	configRepo := repository.NewConfigRepo(db)

	tokens := service.NewTokenService(tokensRepo)
	sessions := service.NewSessionManager(sessionsRepo, cfg.JWTSecret, cfg.SessionMaxLife, cfg.SessionIdle)
	authCfg := service.NewAuthConfigCache(configRepo)
	mailer := service.NewMailPublisher()

	gate := &middleware.Gate{
		Limiter:  limiter.New(rdb, config.LoadRateLimitConfig()),
		Config:   authCfg,
		Sessions: sessions,
	}

	// Hourly sweep of expired tokens and sessions. Expired rows are
	// inert either way; this keeps the tables small.
	c := cron.New()
	if _, err := c.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := tokens.PurgeExpired(ctx); err != nil {
			logrus.WithError(err).Warn("token purge failed")
		} else if n > 0 {
			logrus.WithField("count", n).Info("purged expired tokens")
		}
		if n, err := sessions.PurgeExpired(ctx); err != nil {
			logrus.WithError(err).Warn("session purge failed")
		} else if n > 0 {
			logrus.WithField("count", n).Info("purged expired sessions")
		}
	}); err != nil {
		logrus.WithError(err).Fatal("cron setup failed")
	}
	c.Start()
	defer c.Stop()

	// Outbound email consumer; reconnects on broker outages.
	go queue.StartEmailConsumer()

	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = middleware.NewIPExtractor(cfg.TrustedProxies)

	router.RegisterRoutes(e, gate,
		handler.NewAuthHandler(cfg, usersRepo, sessions, tokens, authCfg, mailer),
		handler.NewAdminHandler(configRepo, authCfg),
		handler.NewUserHandler(usersRepo),
	)

	addr := ":" + cfg.Port
	logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
	if err := e.Start(addr); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}
