package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/gearline/crm/config"
	"github.com/gearline/crm/pkg/api"
	"github.com/gearline/crm/pkg/api/handlers"
	"github.com/gearline/crm/pkg/bulkdispatch"
	"github.com/gearline/crm/pkg/cache"
	"github.com/gearline/crm/pkg/database"
	"github.com/gearline/crm/pkg/jobs"
	"github.com/gearline/crm/pkg/leadassignment"
	"github.com/gearline/crm/pkg/leadintake"
	"github.com/gearline/crm/pkg/leadscoring"
	"github.com/gearline/crm/pkg/middleware"
	"github.com/gearline/crm/pkg/notify"
	"github.com/gearline/crm/pkg/repository"
	"github.com/gearline/crm/pkg/snapshot"
	"github.com/gearline/crm/pkg/teleobi"
	"github.com/gearline/crm/pkg/templatecache"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "", log.LstdFlags)
	loc := cfg.Location()

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
		})
		if err != nil {
			logger.Printf("⚠️ Sentry initialization failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatalf("❌ %v", err)
	}

	redisCache, err := cache.New(cfg.RedisURL)
	if err != nil {
		logger.Printf("⚠️ Redis unavailable, continuing without hot cache: %v", err)
		redisCache = nil
	}

	// Repositories
	assignmentRepo := repository.NewAssignmentRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	bulkJobRepo := repository.NewBulkJobRepository(db)
	intakeRepo := repository.NewIntakeRepository(db)
	pushRepo := repository.NewPushRepository(db)

	// Provider client and shared outbound throttle
	teleobiClient := teleobi.NewClient(cfg.TeleobiAPIURL, cfg.TeleobiAuthToken, cfg.TeleobiPhoneNumberID)
	sendLimiter := rate.NewLimiter(rate.Limit(cfg.ProviderSendsPerSecond), cfg.ProviderSendBurst)

	// Services
	notifier := notify.NewService(pushRepo, notify.Options{
		SendGridAPIKey:  cfg.SendGridAPIKey,
		EmailFrom:       cfg.EmailFrom,
		EmailFromName:   cfg.EmailFromName,
		OpsEmail:        cfg.OpsEmail,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		VAPIDSubscriber: cfg.VAPIDSubscriber,
	}, logger)

	scoringService := leadscoring.NewService(scoreRepo, leadscoring.DefaultStrategy{}, logger)
	assignmentService := leadassignment.NewService(assignmentRepo, scoringService, notifier, cfg.AgentLeadCapacity, logger)
	snapshotService := snapshot.NewService(snapshotRepo, loc, logger)
	templateService := templatecache.NewService(templateRepo, teleobiClient, redisCache, cfg.TemplateCacheTTL, logger)
	intakeService := leadintake.NewService(intakeRepo, logger)

	dispatcher := bulkdispatch.NewEngine(bulkJobRepo, templateService, teleobiClient, sendLimiter, notifier, bulkdispatch.Options{
		Workers:        cfg.BulkWorkers,
		MaxAttempts:    cfg.BulkMaxAttempts,
		RetryBaseDelay: cfg.BulkRetryBaseDelay,
		AttemptTimeout: cfg.BulkAttemptTimeout,
		DailyLimit:     cfg.ProviderDailyLimit,
		Location:       loc,
	}, logger)

	// Pick up jobs interrupted by the previous run.
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
	if err := dispatcher.RecoverStale(recoverCtx, 0); err != nil {
		logger.Printf("⚠️ Startup job recovery failed: %v", err)
	}
	cancelRecover()

	cronManager := jobs.NewCronManager(snapshotService, templateService, dispatcher, redisCache, loc, cfg.SnapshotHour, logger)
	if err := cronManager.Start(); err != nil {
		logger.Fatalf("❌ Failed to start cron jobs: %v", err)
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewValidator()
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.Logger())
	e.Use(middleware.Metrics())
	e.Use(middleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst).Middleware())
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}

	h := &handlers.Handler{
		Intake:     intakeService,
		Scoring:    scoringService,
		Assignment: assignmentService,
		Snapshots:  snapshotService,
		Templates:  templateService,
		Dispatcher: dispatcher,
		PushStore:  pushRepo,
		LeadStore:  assignmentRepo,
		ScoreStore: scoreRepo,
		JobStore:   bulkJobRepo,
	}
	api.RegisterRoutes(e, h)

	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
		logger.Printf("🚀 API listening on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("❌ Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Println("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cronManager.Stop()
	dispatcher.Stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Printf("⚠️ Server shutdown: %v", err)
	}
	if redisCache != nil {
		redisCache.Close()
	}
	logger.Println("✅ Shutdown complete")
}
