// Command initapp bootstraps a fresh installation: it creates the auth
// tables, writes the config singleton and creates the first superuser.
// Safe to re-run; an existing superuser is never overwritten.
package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rm-info/finding-memos/internal/config"
	"github.com/rm-info/finding-memos/internal/database"
	"github.com/rm-info/finding-memos/internal/model"
	"github.com/rm-info/finding-memos/internal/repository"
	"github.com/rm-info/finding-memos/internal/utils"
)

func main() {
	var (
		email      = flag.String("email", "", "superuser email (required on first run)")
		password   = flag.String("password", "", "superuser password (required on first run)")
		enableAuth = flag.Bool("enable-auth", true, "enable authentication globally")
		domains    = flag.String("allowed-domains", "", "comma-separated email domains allowed to self-register (empty = unrestricted)")
	)
	flag.Parse()

	cfg := config.Load()
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logrus.WithError(err).Fatal("database connection failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.Migrate(ctx, db); err != nil {
		logrus.WithError(err).Fatal("database migration failed")
	}

	var allowed []string
	for _, d := range strings.Split(*domains, ",") {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed = append(allowed, d)
		}
	}
	configRepo := repository.NewConfigRepo(db)
	if err := configRepo.Save(ctx, model.AuthConfig{EnableAuth: *enableAuth, AllowedDomains: allowed}); err != nil {
		logrus.WithError(err).Fatal("save config failed")
	}
	logrus.WithFields(logrus.Fields{"enable_auth": *enableAuth, "allowed_domains": allowed}).
		Info("configuration saved")

	if *email == "" || *password == "" {
		logrus.Info("no superuser credentials given, skipping superuser creation")
		return
	}
	if reason := utils.ValidatePassword(*password); reason != "" {
		logrus.Fatal(reason)
	}

	users := repository.NewUserRepo(db)
	uid, err := users.Create(ctx, *email, *password, model.RoleSuperuser, cfg.BcryptCost)
	if err == repository.ErrEmailExists {
		logrus.WithField("email", *email).Info("superuser already exists, leaving it untouched")
		return
	}
	if err != nil {
		logrus.WithError(err).Fatal("create superuser failed")
	}
	// The bootstrap account needs no email validation round trip.
	if err := users.UpdateStatus(ctx, uid, model.StatusValid); err != nil {
		logrus.WithError(err).Fatal("activate superuser failed")
	}
	logrus.WithFields(logrus.Fields{"email": *email, "user_id": uid}).Info("superuser created")
}
