package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/furniro/apiserver/types"
)

// AttrEventType is the message attribute that carries the event type, so
// consumers can filter without decoding the body.
const AttrEventType = "event_type"

// Publisher is the subset of *MQ that EventPublisher needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// EventPublisher encodes domain events as JSON and publishes them on a
// single channel.
type EventPublisher struct {
	publisher Publisher
	channel   string
	timeout   time.Duration
}

func NewEventPublisher(publisher Publisher, channel string) *EventPublisher {
	return &EventPublisher{
		publisher: publisher,
		channel:   channel,
		timeout:   5 * time.Second,
	}
}

// Publish sends event. The call is bounded by a short timeout so a slow
// broker cannot hold up the request that produced the event.
func (p *EventPublisher) Publish(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err = p.publisher.Publish(ctx, p.channel, data, map[string]string{AttrEventType: event.Type})
	return err
}

// DecodeEvent parses a message produced by EventPublisher.
func DecodeEvent(msg Message) (types.Event, error) {
	var event types.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	return event, nil
}
