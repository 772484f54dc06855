package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"coopledger/events"
	"coopledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	subject string
	data    []byte
}

// recordingPublisher captures messages instead of sending them
type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{subject: subject, data: data})
	return nil
}

func (p *recordingPublisher) published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

func TestNATSEventPublisher_Envelope(t *testing.T) {
	recorder := &recordingPublisher{}
	publisher := NewNATSEventPublisher(recorder, NewEventSubjectMapper(), "coopledger")
	publisher.now = func() time.Time { return time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC) }

	var publishedTypes []events.EventType
	publisher.OnPublished(func(eventType events.EventType) {
		publishedTypes = append(publishedTypes, eventType)
	})

	event := events.BalanceChangedEvent{
		AccountNumber:     "RS-1700000000000-000001",
		Product:           models.ProductRegularSavings,
		TransactionNumber: "TXN-1700000000000-000001",
		TransactionType:   models.TransactionTypeDeposit,
		Amount:            decimal.RequireFromString("1000.00"),
		BalanceBefore:     decimal.RequireFromString("500.00"),
		BalanceAfter:      decimal.RequireFromString("1500.00"),
		AuthorizedBy:      "teller-1",
	}

	require.NoError(t, publisher.Publish(context.Background(), event))

	messages := recorder.published()
	require.Len(t, messages, 1)
	assert.Equal(t, "ledger.balance_changed", messages[0].subject)

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(messages[0].data, &envelope))
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, "balance_changed", envelope.EventType)
	assert.Equal(t, "coopledger", envelope.SourceService)
	assert.True(t, envelope.Timestamp.Equal(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)))

	var payload events.BalanceChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, event.TransactionNumber, payload.TransactionNumber)
	assert.True(t, event.BalanceAfter.Equal(payload.BalanceAfter))

	assert.Equal(t, []events.EventType{events.EventTypeBalanceChanged}, publishedTypes)
}

func TestNATSEventPublisher_PublishError(t *testing.T) {
	recorder := &recordingPublisher{err: errors.New("no responders")}
	publisher := NewNATSEventPublisher(recorder, NewEventSubjectMapper(), "coopledger")

	called := false
	publisher.OnPublished(func(events.EventType) { called = true })

	err := publisher.Publish(context.Background(), events.LoanCreatedEvent{LoanNumber: "LN-1"})
	assert.ErrorContains(t, err, "no responders")
	assert.False(t, called)
}

func TestNATSEventPublisher_AttachForwardsBusEvents(t *testing.T) {
	recorder := &recordingPublisher{}
	publisher := NewNATSEventPublisher(recorder, NewEventSubjectMapper(), "coopledger")

	bus := events.NewBus()
	publisher.Attach(bus)

	bus.Emit(context.Background(), events.TimeDepositMaturedEvent{AccountNumber: "TD-1"})
	bus.Emit(context.Background(), events.LoanRepaymentAppliedEvent{LoanNumber: "LN-1"})
	bus.Wait()

	subjects := make([]string, 0, 2)
	for _, msg := range recorder.published() {
		subjects = append(subjects, msg.subject)
	}
	assert.ElementsMatch(t, []string{"time_deposits.matured", "loans.repayment_applied"}, subjects)
}

func TestEventSubjectMapper(t *testing.T) {
	mapper := NewEventSubjectMapper()

	t.Run("every forwarded type has a distinct subject", func(t *testing.T) {
		seen := make(map[string]bool)
		for _, eventType := range mapper.EventTypes() {
			subject := subjectsByType[eventType]
			require.NotEmpty(t, subject, "missing subject for %s", eventType)
			assert.False(t, seen[subject], "duplicate subject %s", subject)
			seen[subject] = true

			assert.Equal(t, eventType, mapper.MapSubjectToEventType(subject))
		}
		assert.Len(t, mapper.GetAllSubjects(), len(seen))
	})

	t.Run("unknown subject maps to itself", func(t *testing.T) {
		assert.Equal(t, events.EventType("audit.trail"), mapper.MapSubjectToEventType("audit.trail"))
	})
}
