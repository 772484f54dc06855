package observability

// Metric name prefixes
const (
	MetricPrefix = "coopledger"
)

// Metric names
const (
	// Ledger metrics
	LedgerPostingsTotal  = MetricPrefix + ".ledger.postings_total"
	LedgerPostedAmount   = MetricPrefix + ".ledger.posted_amount"
	LedgerTransfersTotal = MetricPrefix + ".ledger.transfers_total"

	// Account metrics
	AccountEventsTotal = MetricPrefix + ".accounts.events_total"

	// Time deposit metrics
	TimeDepositEventsTotal = MetricPrefix + ".time_deposits.events_total"
	TimeDepositPlaced      = MetricPrefix + ".time_deposits.placed_amount"

	// Loan metrics
	LoansCreatedTotal      = MetricPrefix + ".loans.created_total"
	LoanPrincipalDisbursed = MetricPrefix + ".loans.principal_disbursed"
	LoanRepaymentsTotal    = MetricPrefix + ".loans.repayments_total"
	LoanRepaidAmount       = MetricPrefix + ".loans.repaid_amount"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelType       = "type"
	LabelEventType  = "event_type"
	LabelProduct    = "product"
	LabelDirection  = "direction"
	LabelMethod     = "method"
	LabelLoanStatus = "loan_status"
)

// Posting directions
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)
