package infrastructure

import (
	"fmt"

	"coopledger/events"
)

// EventSubjectMapper handles mapping between ledger events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

var subjectsByType = map[events.EventType]string{
	events.EventTypeBalanceChanged:        "ledger.balance_changed",
	events.EventTypeTransferCompleted:     "ledger.transfer_completed",
	events.EventTypeAccountOpened:         "accounts.opened",
	events.EventTypeAccountClosed:         "accounts.closed",
	events.EventTypeTimeDepositOpened:     "time_deposits.opened",
	events.EventTypeTimeDepositMatured:    "time_deposits.matured",
	events.EventTypeTimeDepositRolledOver: "time_deposits.rolled_over",
	events.EventTypeTimeDepositWithdrawn:  "time_deposits.withdrawn",
	events.EventTypeTimeDepositClosed:     "time_deposits.closed",
	events.EventTypeLoanCreated:           "loans.created",
	events.EventTypeLoanRepaymentApplied:  "loans.repayment_applied",
}

// publishedTypes fixes the order of EventTypes and GetAllSubjects
var publishedTypes = []events.EventType{
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
}

// MapEventToSubject converts a ledger event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	if subject, ok := subjectsByType[event.Type()]; ok {
		return subject
	}
	// Fallback for unknown event types
	return fmt.Sprintf("unknown.%s", event.Type())
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	for eventType, s := range subjectsByType {
		if s == subject {
			return eventType
		}
	}
	return events.EventType(subject)
}

// EventTypes returns every event type that is forwarded
func (m *EventSubjectMapper) EventTypes() []events.EventType {
	out := make([]events.EventType, len(publishedTypes))
	copy(out, publishedTypes)
	return out
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	subjects := make([]string, 0, len(publishedTypes))
	for _, eventType := range publishedTypes {
		subjects = append(subjects, subjectsByType[eventType])
	}
	return subjects
}
