// Package main is the entry point for the Wablast dispatch platform
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"wablast/app/handlers"
	"wablast/app/router"
	"wablast/app/scheduler"
	"wablast/app/services"
	businessflow "wablast/business_flow"
	"wablast/config"
	"wablast/models"
	"wablast/repository"
)

// Application holds the wired components and their shutdown hooks
type Application struct {
	server    *fiber.App
	router    router.Router
	webhooks  *services.WebhookDispatcher
	stopFuncs []func()
}

func main() {
	log.Println("Starting Wablast dispatch platform...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	app, err := initializeApplication(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		appLogger.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	appLogger.Println("Shutting down gracefully...")

	// Stop background workers before closing the server
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Printf("Error during shutdown: %v", err)
	}

	// Let in-flight webhook deliveries finish
	app.webhooks.Wait()

	appLogger.Println("Server stopped")
}

// newLogger builds the application logger according to the logging config.
// File output rotates through lumberjack.
func newLogger(cfg config.LoggingConfig) (*log.Logger, error) {
	var w io.Writer = os.Stdout

	switch cfg.Output {
	case "stdout", "":
	case "file", "both":
		rotated := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		if cfg.Output == "both" {
			w = io.MultiWriter(os.Stdout, rotated)
		} else {
			w = rotated
		}
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	return log.New(w, "", log.LstdFlags|log.LUTC), nil
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, appLogger *log.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormCfg := &gorm.Config{}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(appLogger, gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	appLogger.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// autoMigrate keeps the schema in sync with the model definitions
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.CreditTransaction{},
		&models.Campaign{},
		&models.CampaignContact{},
		&models.ScheduledMessage{},
		&models.Message{},
		&models.Webhook{},
		&models.WebhookLog{},
		&models.ProxyConfig{},
	)
}

// initializeNotifier builds the realtime notifier. With the cache disabled,
// events are dropped.
func initializeNotifier(cfg *config.CacheConfig, appLogger *log.Logger) (services.RealtimeNotifier, func(), error) {
	if !cfg.Enabled {
		return services.NoopNotifier{}, func() {}, nil
	}

	notifier, err := services.NewRedisNotifier(cfg, appLogger)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := notifier.Ping(ctx); err != nil {
		_ = notifier.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	appLogger.Printf("Redis connection established (db=%d)", cfg.RedisDB)

	monitorCancel := startCacheHealthMonitor(context.Background(), notifier, 30*time.Second, appLogger)
	stop := func() {
		monitorCancel()
		_ = notifier.Close()
	}
	return notifier, stop, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically
// pings Redis to detect connectivity issues. The returned cancel function
// stops the monitor.
func startCacheHealthMonitor(parent context.Context, notifier *services.RedisNotifier, interval time.Duration, appLogger *log.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := notifier.Ping(ctx); err != nil {
					appLogger.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires repositories, services, flows, handlers, and
// background workers together
func initializeApplication(cfg *config.ProductionConfig, appLogger *log.Logger) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database, appLogger)
	if err != nil {
		return nil, err
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	notifier, stopNotifier, err := initializeNotifier(&cfg.Cache, appLogger)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, stopNotifier)

	// Repositories
	accountRepo := repository.NewAccountRepository(db)
	ledgerRepo := repository.NewCreditTransactionRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	scheduledRepo := repository.NewScheduledMessageRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	proxyRepo := repository.NewProxyConfigRepository(db)

	// Services
	proxyService := services.NewProxyService(proxyRepo, &cfg.Proxy, appLogger)
	sessions := services.NewGatewaySessionManager(&cfg.Transport, proxyService)
	dispatcher := services.NewWebhookDispatcher(webhookRepo, &cfg.Webhook, appLogger)

	// Flows
	creditFlow := businessflow.NewCreditFlow(accountRepo, ledgerRepo, db, appLogger)
	dispatchFlow := businessflow.NewDispatchFlow(
		accountRepo,
		messageRepo,
		campaignRepo,
		creditFlow,
		sessions,
		dispatcher,
		notifier,
		&cfg.Dispatch,
		appLogger,
	)
	campaignFlow := businessflow.NewCampaignFlow(campaignRepo, dispatchFlow, dispatcher, notifier, &cfg.Dispatch, appLogger)
	webhookFlow := businessflow.NewWebhookFlow(webhookRepo, dispatcher, appLogger)
	scheduleFlow := businessflow.NewScheduleFlow(scheduledRepo, appLogger)
	statusFlow := businessflow.NewMessageStatusFlow(messageRepo, dispatcher, appLogger)

	// Handlers
	h := router.Handlers{
		Dispatch: handlers.NewDispatchHandler(dispatchFlow, scheduleFlow),
		Campaign: handlers.NewCampaignHandler(campaignFlow, campaignRepo),
		Webhook:  handlers.NewWebhookHandler(webhookFlow),
		Credit:   handlers.NewCreditHandler(creditFlow),
		Callback: handlers.NewCallbackHandler(statusFlow),
		Proxy:    handlers.NewProxyHandler(proxyRepo, proxyService),
	}

	appRouter := router.NewFiberRouter(cfg, h)

	// Background workers
	if cfg.Scheduler.Enabled {
		dispatchScheduler := scheduler.NewDispatchScheduler(
			scheduledRepo,
			campaignRepo,
			campaignFlow,
			dispatchFlow,
			sessions,
			appLogger,
			cfg.Scheduler.Interval,
			cfg.Scheduler.BatchLimit,
		)
		stopFuncs = append(stopFuncs, dispatchScheduler.Start(context.Background()))
	}

	quotaReset := scheduler.NewQuotaResetJob(accountRepo, &cfg.Dispatch, appLogger)
	stopQuotaReset, err := quotaReset.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start quota reset job: %w", err)
	}
	stopFuncs = append(stopFuncs, stopQuotaReset)

	return &Application{
		server:    appRouter.GetApp(),
		router:    appRouter,
		webhooks:  dispatcher,
		stopFuncs: stopFuncs,
	}, nil
}
