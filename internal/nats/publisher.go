package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher publishes memory events to JetStream.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishMemoryEvent publishes event on its kind's subject. The message id
// lets the stream drop a duplicate when a publish is retried.
func (p *Publisher) PublishMemoryEvent(ctx context.Context, event MemoryEvent) error {
	switch event.Kind {
	case EventStored, EventDeleted, EventCleared:
	default:
		return fmt.Errorf("unknown memory event kind %q", event.Kind)
	}

	subject := event.Subject()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event.Kind, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(event.msgID())); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

func (e MemoryEvent) msgID() string {
	return e.Kind + ":" + e.AgentID + ":" + e.MemoryID + ":" + strconv.FormatInt(e.Timestamp.UnixNano(), 10)
}
