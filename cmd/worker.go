package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

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
	"github.com/frahmantamala/tutor-billing/internal/subscription"
	subscriptionPostgres "github.com/frahmantamala/tutor-billing/internal/subscription/postgres"
	"github.com/frahmantamala/tutor-billing/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the billing sweep worker",
	Long:  `Run the scheduled billing sweeps: guardian month rollover, subscription renewals, past-due retries and expiry.`,
	Run: func(cmd *cobra.Command, args []string) {
		startBillingWorker()
	},
}

// startBillingWorker wires the same service graph as the HTTP server,
// minus the handlers, and drives it from cron schedules instead of
// requests.
func startBillingWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize gorm: %v\n", err)
		os.Exit(1)
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

	notificationService := notification.NewService(
		notificationPostgres.NewNotificationRepository(gormDB),
		nil,
		log,
	)
	notificationService.RegisterEventHandlers(eventBus)

	scheduler := cron.New()

	addSweep(scheduler, log, "guardian rollover", config.Billing.RolloverSchedule, func(ctx context.Context) (int, error) {
		return guardianService.RolloverDueControls()
	})
	addSweep(scheduler, log, "subscription renewal", config.Billing.RenewalSchedule, subscriptionService.RenewDueSubscriptions)
	addSweep(scheduler, log, "past-due retry", config.Billing.RetrySchedule, subscriptionService.RetryPastDueSubscriptions)
	addSweep(scheduler, log, "subscription expiry", config.Billing.ExpirySchedule, subscriptionService.ExpireDueSubscriptions)

	scheduler.Start()
	log.Info("billing worker started",
		"rollover_schedule", config.Billing.RolloverSchedule,
		"renewal_schedule", config.Billing.RenewalSchedule,
		"retry_schedule", config.Billing.RetrySchedule,
		"expiry_schedule", config.Billing.ExpirySchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal, shutting down billing worker", "signal", sig)

	stopCtx := scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	select {
	case <-stopCtx.Done():
	case <-shutdownCtx.Done():
		log.Warn("shutdown timeout reached while waiting for running sweeps")
	}

	processorClient.Shutdown()
	if err := db.Close(); err != nil {
		log.Error("database close error", "error", err)
	}
	log.Info("billing worker shutdown complete")
}

func addSweep(scheduler *cron.Cron, log *slog.Logger, name, schedule string, sweep func(ctx context.Context) (int, error)) {
	if schedule == "" {
		log.Info("sweep disabled, no schedule configured", "sweep", name)
		return
	}

	_, err := scheduler.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		count, err := sweep(ctx)
		if err != nil {
			log.Error("sweep failed", "sweep", name, "error", err)
			return
		}
		log.Info("sweep finished", "sweep", name, "processed", count)
	})
	if err != nil {
		log.Error("invalid sweep schedule", "sweep", name, "schedule", schedule, "error", err)
	}
}
