package events

import (
	"context"
	"sync"
	"time"

	"coopledger/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChanged        EventType = "balance_changed"
	EventTypeTransferCompleted     EventType = "transfer_completed"
	EventTypeAccountOpened         EventType = "account_opened"
	EventTypeAccountClosed         EventType = "account_closed"
	EventTypeTimeDepositOpened     EventType = "time_deposit_opened"
	EventTypeTimeDepositMatured    EventType = "time_deposit_matured"
	EventTypeTimeDepositRolledOver EventType = "time_deposit_rolled_over"
	EventTypeTimeDepositWithdrawn  EventType = "time_deposit_withdrawn"
	EventTypeTimeDepositClosed     EventType = "time_deposit_closed"
	EventTypeLoanCreated           EventType = "loan_created"
	EventTypeLoanRepaymentApplied  EventType = "loan_repayment_applied"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangedEvent is published for every ledger posting
type BalanceChangedEvent struct {
	AccountID         int64                  `json:"account_id"`
	AccountNumber     string                 `json:"account_number"`
	MemberID          int64                  `json:"member_id"`
	Product           models.Product         `json:"product"`
	TransactionNumber string                 `json:"transaction_number"`
	TransactionType   models.TransactionType `json:"transaction_type"`
	Amount            decimal.Decimal        `json:"amount"`
	BalanceBefore     decimal.Decimal        `json:"balance_before"`
	BalanceAfter      decimal.Decimal        `json:"balance_after"`
	AuthorizedBy      string                 `json:"authorized_by"`
}

func (e BalanceChangedEvent) Type() EventType {
	return EventTypeBalanceChanged
}

// TransferCompletedEvent links the two legs of a transfer
type TransferCompletedEvent struct {
	FromAccountNumber       string          `json:"from_account_number"`
	ToAccountNumber         string          `json:"to_account_number"`
	Amount                  decimal.Decimal `json:"amount"`
	DebitTransactionNumber  string          `json:"debit_transaction_number"`
	CreditTransactionNumber string          `json:"credit_transaction_number"`
}

func (e TransferCompletedEvent) Type() EventType {
	return EventTypeTransferCompleted
}

// AccountOpenedEvent is published when a member account is created
type AccountOpenedEvent struct {
	AccountID      int64           `json:"account_id"`
	AccountNumber  string          `json:"account_number"`
	MemberID       int64           `json:"member_id"`
	Product        models.Product  `json:"product"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

func (e AccountOpenedEvent) Type() EventType {
	return EventTypeAccountOpened
}

// AccountClosedEvent is published when a zero-balance account is closed
type AccountClosedEvent struct {
	AccountNumber string         `json:"account_number"`
	MemberID      int64          `json:"member_id"`
	Product       models.Product `json:"product"`
}

func (e AccountClosedEvent) Type() EventType {
	return EventTypeAccountClosed
}

// TimeDepositOpenedEvent is published after a placement is funded
type TimeDepositOpenedEvent struct {
	AccountNumber string          `json:"account_number"`
	MemberID      int64           `json:"member_id"`
	Principal     decimal.Decimal `json:"principal"`
	TermMonths    int             `json:"term_months"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	Interest      decimal.Decimal `json:"interest"`
	MaturityDate  time.Time       `json:"maturity_date"`
}

func (e TimeDepositOpenedEvent) Type() EventType {
	return EventTypeTimeDepositOpened
}

// TimeDepositMaturedEvent is published when term interest is credited at maturity
type TimeDepositMaturedEvent struct {
	AccountNumber    string          `json:"account_number"`
	InterestCredited decimal.Decimal `json:"interest_credited"`
	Balance          decimal.Decimal `json:"balance"`
	MaturityDate     time.Time       `json:"maturity_date"`
}

func (e TimeDepositMaturedEvent) Type() EventType {
	return EventTypeTimeDepositMatured
}

// TimeDepositRolledOverEvent is published when a deposit is placed for a further term
type TimeDepositRolledOverEvent struct {
	AccountNumber        string          `json:"account_number"`
	PreviousMaturityDate time.Time       `json:"previous_maturity_date"`
	NewMaturityDate      time.Time       `json:"new_maturity_date"`
	InterestEarned       decimal.Decimal `json:"interest_earned"`
	RolloverAmount       decimal.Decimal `json:"rollover_amount"`
	InterestRate         decimal.Decimal `json:"interest_rate"`
}

func (e TimeDepositRolledOverEvent) Type() EventType {
	return EventTypeTimeDepositRolledOver
}

// TimeDepositWithdrawnEvent is published for early withdrawals, full or partial
type TimeDepositWithdrawnEvent struct {
	AccountNumber    string          `json:"account_number"`
	Amount           decimal.Decimal `json:"amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Full             bool            `json:"full"`
}

func (e TimeDepositWithdrawnEvent) Type() EventType {
	return EventTypeTimeDepositWithdrawn
}

// TimeDepositClosedEvent is published when a matured deposit is paid out
type TimeDepositClosedEvent struct {
	AccountNumber string          `json:"account_number"`
	Payout        decimal.Decimal `json:"payout"`
}

func (e TimeDepositClosedEvent) Type() EventType {
	return EventTypeTimeDepositClosed
}

// LoanCreatedEvent is published when a loan and its schedule are persisted
type LoanCreatedEvent struct {
	LoanID             int64           `json:"loan_id"`
	LoanNumber         string          `json:"loan_number"`
	MemberID           int64           `json:"member_id"`
	Principal          decimal.Decimal `json:"principal"`
	AnnualInterestRate decimal.Decimal `json:"annual_interest_rate"`
	TermMonths         int             `json:"term_months"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`
}

func (e LoanCreatedEvent) Type() EventType {
	return EventTypeLoanCreated
}

// LoanRepaymentAppliedEvent is published for each repayment
type LoanRepaymentAppliedEvent struct {
	LoanID            int64                    `json:"loan_id"`
	LoanNumber        string                   `json:"loan_number"`
	InstallmentID     int64                    `json:"installment_id"`
	TransactionNumber string                   `json:"transaction_number"`
	Amount            decimal.Decimal          `json:"amount"`
	Method            models.RepaymentMethod   `json:"method"`
	InstallmentStatus models.InstallmentStatus `json:"installment_status"`
	LoanBalance       decimal.Decimal          `json:"loan_balance"`
	LoanStatus        models.LoanStatus        `json:"loan_status"`
}

func (e LoanRepaymentAppliedEvent) Type() EventType {
	return EventTypeLoanRepaymentApplied
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	inflight sync.WaitGroup
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds handler for every listed event type
func (b *Bus) SubscribeAll(eventTypes []EventType, handler Handler) {
	for _, eventType := range eventTypes {
		b.Subscribe(eventType, handler)
	}
}

// Emit dispatches an event to all registered handlers without blocking the caller
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	for i, handler := range handlers {
		b.inflight.Add(1)
		go func(h Handler, handlerIndex int) {
			defer b.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Wait blocks until every handler started so far has returned
func (b *Bus) Wait() {
	b.inflight.Wait()
}

// TransactionalBus holds events raised inside a unit of work until it commits
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Queued event until commit")
	b.pending = append(b.pending, e)
}

// Pending returns the queued events in publish order
func (b *TransactionalBus) Pending() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// Flush emits the queued events; called after a successful commit. Delivery
// is asynchronous, so handler failures never reach the committing caller.
func (b *TransactionalBus) Flush(ctx context.Context) {
	log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing committed events")

	// Handlers outlive the request; detach them from its deadline
	eventCtx := context.WithoutCancel(ctx)

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops queued events; called after a rollback
func (b *TransactionalBus) Discard() {
	if len(b.pending) > 0 {
		log.WithField("discardedEventCount", len(b.pending)).Debug("Discarding events of rolled back unit")
	}
	b.pending = nil
}
