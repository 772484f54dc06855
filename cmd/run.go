package cmd

import (
	"context"
	"fmt"
	"time"

	"coopledger/application"
	"coopledger/config"
	"coopledger/database"
	"coopledger/domain/services"
	"coopledger/events"
	"coopledger/infrastructure"
	"coopledger/infrastructure/observability"
	"coopledger/reference"
	"coopledger/repository"
	"coopledger/service"

	log "github.com/sirupsen/logrus"
)

// Services holds the ledger services wired against one database
type Services struct {
	Accounts     *service.AccountService
	Ledger       *service.LedgerService
	TimeDeposits *service.TimeDepositService
	Loans        *service.LoanService
	RateTiers    *service.RateTierService
}

// NewServices builds the ledger services from configuration
func NewServices(cfg *config.Config, uowFactory service.UnitOfWorkFactory) (*Services, error) {
	residualMode, err := services.ParseResidualMode(cfg.AmortizationResidualMode)
	if err != nil {
		return nil, err
	}
	tieBreak, err := services.ParseTieBreak(cfg.RateTieBreak)
	if err != nil {
		return nil, err
	}

	refs := reference.NewGenerator()

	ledger := service.NewLedgerService(uowFactory, refs)
	ledger.SetSavingsMinimumBalance(cfg.SavingsMinimumBalance)
	loans := service.NewLoanService(uowFactory, refs, services.NewAmortizationService(residualMode))
	loans.SetSavingsMinimumBalance(cfg.SavingsMinimumBalance)

	return &Services{
		Accounts:     service.NewAccountService(uowFactory, refs),
		Ledger:       ledger,
		TimeDeposits: service.NewTimeDepositService(uowFactory, refs, services.NewInterestRateService(tieBreak)),
		Loans:        loans,
		RateTiers:    service.NewRateTierService(uowFactory),
	}, nil
}

// Run initializes the ledger and runs its background work until ctx is cancelled
func Run(ctx context.Context) error {
	cfg := config.Get()
	if err := ConfigureLogging(cfg); err != nil {
		return err
	}

	log.WithField("environment", cfg.Environment).Info("Starting cooperative ledger...")

	// Bring the schema up to date before serving
	log.Info("Running database migrations...")
	if err := database.RunMigrationsWithURL(cfg.GetDatabaseURL()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	eventBus := events.NewBus()

	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics := observability.GetMetrics()
	metrics.Instrument(eventBus)

	var natsClient *infrastructure.NATSClient
	if cfg.NATSEnabled {
		natsClient, err = connectEventStream(ctx, cfg, eventBus, metrics)
		if err != nil {
			return err
		}
	}

	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)
	svcs, err := NewServices(cfg, uowFactory)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	log.Info("Services initialized successfully")

	worker := application.NewMaturityWorker(svcs.TimeDeposits, cfg.MaturitySweepInterval)
	stopWorker := worker.Start(ctx)

	log.WithFields(log.Fields{
		"sweepInterval":  cfg.MaturitySweepInterval,
		"residualMode":   cfg.AmortizationResidualMode,
		"rateTieBreak":   cfg.RateTieBreak,
		"minimumBalance": cfg.SavingsMinimumBalance.StringFixed(2),
	}).Info("Ledger is running")
	<-ctx.Done()

	log.Info("Shutting down ledger...")
	stopWorker()

	// Let in-flight event handlers finish before their sinks close
	eventBus.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}

	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down metrics provider")
	}

	log.Info("Shutdown completed")
	return nil
}

func connectEventStream(ctx context.Context, cfg *config.Config, bus *events.Bus, metrics *observability.MetricsProvider) (*infrastructure.NATSClient, error) {
	log.Info("Connecting to NATS...")

	client := infrastructure.NewNATSClient(cfg.NATSServers, cfg.OTelServiceName)
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		return nil, err
	}

	mapper := infrastructure.NewEventSubjectMapper()
	if err := infrastructure.EnsureLedgerEventStream(client, mapper); err != nil {
		client.Close()
		return nil, err
	}

	publisher := infrastructure.NewNATSEventPublisher(client, mapper, cfg.OTelServiceName)
	publisher.OnPublished(metrics.RecordNATSMessagePublished)
	publisher.Attach(bus)

	log.Info("Forwarding committed events to NATS")
	return client, nil
}
