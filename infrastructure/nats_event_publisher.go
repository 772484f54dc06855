package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coopledger/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// LedgerEventStream is the JetStream stream holding forwarded ledger events
const LedgerEventStream = "ledger_events"

// EventEnvelope wraps an event payload for the wire
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// NATSEventPublisher forwards committed bus events to NATS subjects
type NATSEventPublisher struct {
	publisher     MessagePublisher
	subjectMapper *EventSubjectMapper
	source        string
	now           func() time.Time
	onPublished   func(events.EventType)
}

// NewNATSEventPublisher creates a new NATS event publisher
func NewNATSEventPublisher(publisher MessagePublisher, subjectMapper *EventSubjectMapper, source string) *NATSEventPublisher {
	return &NATSEventPublisher{
		publisher:     publisher,
		subjectMapper: subjectMapper,
		source:        source,
		now:           time.Now,
	}
}

// OnPublished registers a callback run after each successful publish
func (p *NATSEventPublisher) OnPublished(fn func(events.EventType)) {
	p.onPublished = fn
}

// Publish wraps the event in an envelope and publishes it on its subject
func (p *NATSEventPublisher) Publish(ctx context.Context, event events.Event) error {
	subject := p.subjectMapper.MapEventToSubject(event)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     p.now().UTC(),
		SourceService: p.source,
		Payload:       payload,
	}

	envelopeData, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.publisher.Publish(ctx, subject, envelopeData); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	if p.onPublished != nil {
		p.onPublished(event.Type())
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")

	return nil
}

// Attach subscribes the publisher to every forwarded event type on bus.
// Publish failures are logged; the ledger mutation has already committed.
func (p *NATSEventPublisher) Attach(bus *events.Bus) {
	bus.SubscribeAll(p.subjectMapper.EventTypes(), func(ctx context.Context, event events.Event) {
		if err := p.Publish(ctx, event); err != nil {
			log.WithError(err).WithField("eventType", event.Type()).Error("Failed to forward event to NATS")
		}
	})
}

// EnsureLedgerEventStream ensures the ledger_events stream exists with the mapped subjects
func EnsureLedgerEventStream(client *NATSClient, mapper *EventSubjectMapper) error {
	return client.EnsureStream(LedgerEventStream, mapper.GetAllSubjects())
}
