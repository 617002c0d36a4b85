package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	metadataEventType = "event_type"
	metadataCourseID  = "course_id"
)

// EventPublisher publishes committed course changes
type EventPublisher interface {
	PublishCourseEvent(ctx context.Context, event CourseEvent) error
	Close() error
}

// WatermillEventPublisher writes course events to a watermill topic
type WatermillEventPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

func NewWatermillEventPublisher(publisher message.Publisher, topic string, logger *slog.Logger) *WatermillEventPublisher {
	return &WatermillEventPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

func (p *WatermillEventPublisher) PublishCourseEvent(ctx context.Context, event CourseEvent) error {
	envelope := Event{
		ID:        watermill.NewUUID(),
		Type:      event.Type,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      event,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(envelope.ID, payload)
	msg.Metadata.Set(metadataEventType, string(event.Type))
	msg.Metadata.Set(metadataCourseID, event.CourseID)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.logger.DebugContext(ctx, "Course event published",
		"event_id", envelope.ID,
		"type", event.Type,
		"course_id", event.CourseID,
		"version", event.Version)
	return nil
}

func (p *WatermillEventPublisher) Close() error {
	return p.publisher.Close()
}

// DecodeEvent parses a transport payload back into a course event
func DecodeEvent(payload []byte) (Event, error) {
	var envelope Event
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	envelope.Data.Type = envelope.Type
	return envelope, nil
}

// MockEventPublisher records events in memory for tests
type MockEventPublisher struct {
	mu     sync.Mutex
	events []CourseEvent
	err    error
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

// FailWith makes every later publish return err
func (m *MockEventPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockEventPublisher) PublishCourseEvent(ctx context.Context, event CourseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventPublisher) GetPublishedEvents() []CourseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CourseEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfType returns recorded events of one type
func (m *MockEventPublisher) EventsOfType(eventType EventType) []CourseEvent {
	var out []CourseEvent
	for _, e := range m.GetPublishedEvents() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *MockEventPublisher) Close() error { return nil }
