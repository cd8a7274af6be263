// Package app wires configuration, storage, collaborators, the background
// loops, and the operational HTTP surface into a running service.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/salesdock/automation/internal/condition"
	"github.com/salesdock/automation/internal/config"
	"github.com/salesdock/automation/internal/db"
	"github.com/salesdock/automation/internal/dispatch"
	internalhttp "github.com/salesdock/automation/internal/http"
	"github.com/salesdock/automation/internal/reminder"
	"github.com/salesdock/automation/internal/runs"
	"github.com/salesdock/automation/internal/settings"
	"github.com/salesdock/automation/internal/trigger"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultListenAddr = ":8317"

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the automation service: migrations, settings snapshot,
// evaluator and scheduler loops, and the ops HTTP server. It blocks until the
// context is cancelled or the server fails.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	fileCfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	setupLogging(fileCfg)

	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return errDSN
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("app: settings snapshot refresh failed, using defaults")
	}

	var publisher dispatch.Publisher
	if rp := dispatch.NewRedisPublisher(fileCfg.Redis.Addr); rp != nil {
		publisher = rp
		defer func() { _ = rp.Close() }()
	} else {
		log.Warn("app: no redis address configured, dispatch events will not be published")
	}
	dispatcher := dispatch.NewDispatcher(conn, publisher)

	var conditions condition.Evaluator
	if ce := condition.NewHTTPEvaluator(fileCfg.Collaborators.ConditionEndpoint); ce != nil {
		conditions = ce
	} else {
		log.Warn("app: no condition endpoint configured, data-condition rules will error per tick")
	}

	var renderer reminder.Renderer
	if hr := reminder.NewHTTPRenderer(fileCfg.Collaborators.RenderEndpoint); hr != nil {
		renderer = hr
	}
	var mailer reminder.Mailer
	if hm := reminder.NewHTTPMailer(fileCfg.Collaborators.MailEndpoint); hm != nil {
		mailer = hm
	}

	evaluator := trigger.NewEvaluator(conn, dispatcher, conditions)
	scheduler := reminder.NewScheduler(conn, renderer, mailer)

	evaluator.Start(ctx)
	scheduler.Start(ctx)
	runs.NewRetentionCleaner(conn).Start(ctx)

	listen := strings.TrimSpace(fileCfg.Server.Listen)
	if listen == "" {
		listen = defaultListenAddr
	}

	server := &http.Server{
		Addr:    listen,
		Handler: internalhttp.NewRouter(conn, evaluator, scheduler),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infof("automation server listening on %s", listen)
	if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return errServe
	}
	return nil
}

// setupLogging configures logrus level and optional rotating file output.
func setupLogging(cfg *config.FileConfig) {
	if cfg == nil {
		return
	}
	if level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Log.Level)); errParse == nil {
		log.SetLevel(level)
	}
	if file := strings.TrimSpace(cfg.Log.File); file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stdout, rotated))
	}
}
