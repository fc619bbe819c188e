package services

import (
	"context"
	"time"

	"github.com/furniro/apiserver/types"
	"go.uber.org/zap"
)

// EventPublisher delivers domain events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event types.Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, types.Event) error { return nil }

// emitter publishes events on behalf of a service. A failed publish never
// fails the operation that produced the event.
type emitter struct {
	events EventPublisher
	logger *zap.Logger
}

func newEmitter(events EventPublisher, logger *zap.Logger) emitter {
	if events == nil {
		events = noopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return emitter{events: events, logger: logger}
}

func (e emitter) emit(ctx context.Context, eventType, subject string, payload map[string]any) {
	event := types.Event{
		Type:       eventType,
		Subject:    subject,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Warn("publish event failed",
			zap.String("type", eventType),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
