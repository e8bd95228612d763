// Command server runs the scheduling negotiation engine: the HTTP API, the
// periodic automation sweep, and the wiring between the engine and its
// outbound providers (availability, mail, calendar, AI interpreter, Slack).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/meridian-crm/go-scheduling-backend/internal/config"
	httpapi "github.com/meridian-crm/go-scheduling-backend/internal/http"
	"github.com/meridian-crm/go-scheduling-backend/internal/interpret"
	"github.com/meridian-crm/go-scheduling-backend/internal/notify"
	"github.com/meridian-crm/go-scheduling-backend/internal/observability"
	"github.com/meridian-crm/go-scheduling-backend/internal/provider"
	"github.com/meridian-crm/go-scheduling-backend/internal/repo"
	"github.com/meridian-crm/go-scheduling-backend/internal/services"
	"github.com/meridian-crm/go-scheduling-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// cronParser accepts standard 5-field expressions (minute..day-of-week).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	svc := buildServices(db, cfg)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go runSweepLoop(ctx, svc.Sweeper, cfg.Scheduling.SweepCron)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildServices assembles the engine graph. Providers without a configured
// URL fall back to their development stand-ins so the service runs end to end
// with nothing but a SQLite file.
func buildServices(db *gorm.DB, cfg config.Config) httpapi.Services {
	var interpreter interpret.Interpreter
	if cfg.Interpreter.Endpoint != "" {
		interpreter = &interpret.Client{
			Endpoint: cfg.Interpreter.Endpoint,
			APIKey:   cfg.Interpreter.APIKey,
			Timeout:  cfg.Scheduling.InterpreterTimeout,
		}
	} else {
		log.Warn().Msg("no interpreter endpoint configured; using heuristic classifier")
		interpreter = interpret.NewHeuristic()
	}

	var avail services.AvailabilityProvider = provider.OpenAvailability{}
	if cfg.Providers.AvailabilityURL != "" {
		avail = &provider.HTTPAvailability{URL: cfg.Providers.AvailabilityURL, APIKey: cfg.Providers.APIKey}
	} else {
		log.Warn().Msg("no availability provider configured; treating all attendees as free")
	}

	var sender services.MessageSender = provider.LogSender{}
	if cfg.Providers.SendURL != "" {
		sender = &provider.HTTPSender{URL: cfg.Providers.SendURL, APIKey: cfg.Providers.APIKey}
	} else {
		log.Warn().Msg("no mail provider configured; outreach goes to the log only")
	}

	var booker services.CalendarBooker = provider.StubBooker{}
	if cfg.Providers.BookURL != "" {
		booker = &provider.HTTPBooker{URL: cfg.Providers.BookURL, APIKey: cfg.Providers.APIKey}
	}

	availability := &services.AvailabilityService{
		Provider:  avail,
		Timeout:   cfg.Scheduling.AvailabilityTimeout,
		Blackouts: cfg.Scheduling.Blackouts,
	}
	attention := &services.AttentionService{
		DB: db,
		Notifier: notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		}),
	}
	engine := &services.NegotiationService{
		DB:           db,
		Interpreter:  interpreter,
		Availability: availability,
		Composer:     &services.Composer{DB: db},
		Sender:       sender,
		Booker:       booker,
		Attention:    attention,
		Cfg:          cfg.Scheduling,
		ReceiptTTL:   cfg.ReceiptTTL,
	}
	sweeper := &services.SweepService{
		DB:     db,
		Engine: engine,
		Cfg:    cfg.Scheduling,
	}

	return httpapi.Services{
		Engine:       engine,
		Sweeper:      sweeper,
		Attention:    attention,
		Availability: availability,
	}
}

// runSweepLoop fires the automation sweep on the configured cron schedule.
// The expression is parsed once; each iteration sleeps until the next fire
// time so the loop stays aligned with wall-clock boundaries.
func runSweepLoop(ctx context.Context, sweeper *services.SweepService, expr string) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		log.Error().Err(err).Str("cron", expr).Msg("invalid sweep schedule; automation sweep disabled")
		return
	}
	log.Info().Str("cron", expr).Msg("sweep loop started")

	for {
		wait := time.Until(sched.Next(time.Now()))
		select {
		case <-ctx.Done():
			log.Info().Msg("sweep loop stopped")
			return
		case <-time.After(wait):
		}

		report, err := sweeper.Run(ctx)
		if err != nil {
			log.Error().Err(err).Msg("sweep failed")
			continue
		}
		log.Info().
			Int("due", report.Due).
			Int("handled", report.Handled).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Int64("receipts_purged", report.ReceiptsPurged).
			Msg("sweep complete")
	}
}
