package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coopledger/config"
	"coopledger/events"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// MetricsProvider manages OpenTelemetry metrics for the ledger
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	enabled       bool
	mu            sync.RWMutex

	// Metric instruments
	postingsCounter          metric.Int64Counter
	postedAmountCounter      metric.Float64Counter
	transfersCounter         metric.Int64Counter
	accountEventsCounter     metric.Int64Counter
	timeDepositEventsCounter metric.Int64Counter
	timeDepositPlacedCounter metric.Float64Counter
	loansCreatedCounter      metric.Int64Counter
	loanPrincipalCounter     metric.Float64Counter
	repaymentsCounter        metric.Int64Counter
	repaidAmountCounter      metric.Float64Counter
	natsPublishedCounter     metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	var exporter sdkmetric.Exporter
	var err error
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	reader := sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMS)*time.Millisecond),
	)
	if err := mp.initializeWithReader(reader); err != nil {
		return err
	}

	// Set as global meter provider
	otel.SetMeterProvider(mp.meterProvider)

	log.Info("Metrics provider initialized successfully")
	return nil
}

// initializeWithReader builds the meter provider and instruments around
// reader. The caller holds mp.mu.
func (mp *MetricsProvider) initializeWithReader(reader sdkmetric.Reader) error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	mp.meter = mp.meterProvider.Meter("coopledger")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	mp.enabled = true
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	int64Counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&mp.postingsCounter, LedgerPostingsTotal, "Total number of ledger postings"},
		{&mp.transfersCounter, LedgerTransfersTotal, "Total number of completed transfers"},
		{&mp.accountEventsCounter, AccountEventsTotal, "Accounts opened and closed"},
		{&mp.timeDepositEventsCounter, TimeDepositEventsTotal, "Time deposit lifecycle transitions"},
		{&mp.loansCreatedCounter, LoansCreatedTotal, "Total number of loans created"},
		{&mp.repaymentsCounter, LoanRepaymentsTotal, "Total number of loan repayments"},
		{&mp.natsPublishedCounter, NATSMessagesPublishedTotal, "Total number of NATS messages published"},
	}
	for _, c := range int64Counters {
		*c.target, err = mp.meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit("1"),
		)
		if err != nil {
			return fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}

	amountCounters := []struct {
		target      *metric.Float64Counter
		name        string
		description string
	}{
		{&mp.postedAmountCounter, LedgerPostedAmount, "Absolute amount moved by ledger postings"},
		{&mp.timeDepositPlacedCounter, TimeDepositPlaced, "Principal placed in time deposits"},
		{&mp.loanPrincipalCounter, LoanPrincipalDisbursed, "Principal disbursed as loans"},
		{&mp.repaidAmountCounter, LoanRepaidAmount, "Amount applied to loan installments"},
	}
	for _, c := range amountCounters {
		*c.target, err = mp.meter.Float64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit("{currency}"),
		)
		if err != nil {
			return fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}

	return nil
}

// Shutdown flushes and shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// Instrument subscribes the provider to the ledger events it measures
func (mp *MetricsProvider) Instrument(bus *events.Bus) {
	bus.SubscribeAll([]events.EventType{
		events.EventTypeBalanceChanged,
		events.EventTypeTransferCompleted,
		events.EventTypeAccountOpened,
		events.EventTypeAccountClosed,
		events.EventTypeTimeDepositOpened,
		events.EventTypeTimeDepositMatured,
		events.EventTypeTimeDepositRolledOver,
		events.EventTypeTimeDepositWithdrawn,
		events.EventTypeTimeDepositClosed,
		events.EventTypeLoanCreated,
		events.EventTypeLoanRepaymentApplied,
	}, mp.RecordEvent)
}

// RecordEvent updates the instruments for one committed event
func (mp *MetricsProvider) RecordEvent(ctx context.Context, event events.Event) {
	if !mp.isEnabled() {
		return
	}

	switch e := event.(type) {
	case events.BalanceChangedEvent:
		direction := DirectionCredit
		if e.Amount.IsNegative() {
			direction = DirectionDebit
		}
		mp.postingsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String(LabelType, string(e.TransactionType)),
			attribute.String(LabelProduct, string(e.Product)),
			attribute.String(LabelDirection, direction),
		))
		mp.postedAmountCounter.Add(ctx, e.Amount.Abs().InexactFloat64(), metric.WithAttributes(
			attribute.String(LabelType, string(e.TransactionType)),
			attribute.String(LabelDirection, direction),
		))

	case events.TransferCompletedEvent:
		mp.transfersCounter.Add(ctx, 1)

	case events.AccountOpenedEvent:
		mp.accountEventsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String(LabelEventType, string(e.Type())),
			attribute.String(LabelProduct, string(e.Product)),
		))

	case events.AccountClosedEvent:
		mp.accountEventsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String(LabelEventType, string(e.Type())),
			attribute.String(LabelProduct, string(e.Product)),
		))

	case events.TimeDepositOpenedEvent:
		mp.timeDepositEventsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelEventType, string(e.Type()))))
		mp.timeDepositPlacedCounter.Add(ctx, e.Principal.InexactFloat64())

	case events.TimeDepositMaturedEvent, events.TimeDepositRolledOverEvent,
		events.TimeDepositWithdrawnEvent, events.TimeDepositClosedEvent:
		mp.timeDepositEventsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelEventType, string(e.Type()))))

	case events.LoanCreatedEvent:
		mp.loansCreatedCounter.Add(ctx, 1)
		mp.loanPrincipalCounter.Add(ctx, e.Principal.InexactFloat64())

	case events.LoanRepaymentAppliedEvent:
		mp.repaymentsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String(LabelMethod, string(e.Method)),
			attribute.String(LabelLoanStatus, string(e.LoanStatus)),
		))
		mp.repaidAmountCounter.Add(ctx, e.Amount.InexactFloat64(), metric.WithAttributes(
			attribute.String(LabelMethod, string(e.Method)),
		))
	}
}

// RecordNATSMessagePublished records a NATS message being published
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType events.EventType) {
	if !mp.isEnabled() {
		return
	}

	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelEventType, string(eventType)),
		),
	)
}

// isEnabled checks if metrics are enabled and initialized
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.enabled
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
