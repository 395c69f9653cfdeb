package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/tutor-billing/internal"
	"github.com/frahmantamala/tutor-billing/internal/core/events"
	"github.com/frahmantamala/tutor-billing/internal/guardian"
	guardianPostgres "github.com/frahmantamala/tutor-billing/internal/guardian/postgres"
	"github.com/frahmantamala/tutor-billing/internal/ledger"
	ledgerPostgres "github.com/frahmantamala/tutor-billing/internal/ledger/postgres"
	"github.com/frahmantamala/tutor-billing/internal/notification"
	notificationPostgres "github.com/frahmantamala/tutor-billing/internal/notification/postgres"
	"github.com/frahmantamala/tutor-billing/internal/paymentmethod"
	paymentmethodPostgres "github.com/frahmantamala/tutor-billing/internal/paymentmethod/postgres"
	"github.com/frahmantamala/tutor-billing/internal/processor"
	"github.com/frahmantamala/tutor-billing/internal/refund"
	refundPostgres "github.com/frahmantamala/tutor-billing/internal/refund/postgres"
	"github.com/frahmantamala/tutor-billing/internal/subscription"
	subscriptionPostgres "github.com/frahmantamala/tutor-billing/internal/subscription/postgres"
	"github.com/frahmantamala/tutor-billing/internal/transport/rest"
	"github.com/frahmantamala/tutor-billing/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config          *internal.Config
	DB              *sqlx.DB
	Router          *chi.Mux
	Logger          *slog.Logger
	ProcessorClient *processor.Client
	Handlers        rest.Handlers
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Handlers, deps.Config.Server.AllowedOrigins, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		deps.ProcessorClient.Shutdown()
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	processorClient := processor.NewClient(processor.Config{
		APIURL:         config.Processor.APIURL,
		APIKey:         config.Processor.APIKey,
		WebhookURL:     config.Processor.WebhookURL,
		CallTimeout:    config.Processor.CallTimeout,
		MaxWorkers:     config.Processor.MaxWorkers,
		JobQueueSize:   config.Processor.JobQueueSize,
		WorkerPoolSize: config.Processor.WorkerPoolSize,
	}, log)

	eventBus := events.NewEventBus(log)

	methodService := paymentmethod.NewService(paymentmethodPostgres.NewPaymentMethodRepository(gormDB), log)
	guardianService := guardian.NewService(guardianPostgres.NewGuardianRepository(gormDB), eventBus, log)
	ledgerService := ledger.NewService(
		ledgerPostgres.NewLedgerRepository(gormDB),
		guardianService,
		methodService,
		processorClient,
		eventBus,
		log,
	)

	gracePeriod := time.Duration(config.Billing.GracePeriodDays) * 24 * time.Hour
	subscriptionService := subscription.NewService(
		subscriptionPostgres.NewSubscriptionRepository(gormDB),
		ledgerService,
		eventBus,
		gracePeriod,
		log,
	)
	subscriptionService.RegisterEventHandlers(eventBus)

	refundService := refund.NewService(
		refundPostgres.NewRefundRepository(gormDB),
		ledgerService,
		processorClient,
		eventBus,
		log,
	)

	var sender notification.SenderAPI
	if config.Notification.TransportURL != "" {
		sender = notification.NewWebhookSender(config.Notification, log)
	}
	notificationService := notification.NewService(
		notificationPostgres.NewNotificationRepository(gormDB),
		sender,
		log,
	)
	notificationService.RegisterEventHandlers(eventBus)

	return &Dependencies{
		Config:          config,
		Logger:          log,
		DB:              db,
		Router:          chi.NewRouter(),
		ProcessorClient: processorClient,
		Handlers: rest.Handlers{
			PaymentMethod: paymentmethod.NewHandler(methodService),
			Guardian:      guardian.NewHandler(guardianService),
			Ledger:        ledger.NewHandler(ledgerService),
			Subscription:  subscription.NewHandler(subscriptionService),
			Refund:        refund.NewHandler(refundService),
			Notification:  notification.NewHandler(notificationService),
		},
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers gorm over the already pooled sql connection so the
// repositories and the health check share one pool.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: db.DB}), &gorm.Config{})
}
