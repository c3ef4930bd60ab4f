package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerOptions describes a durable pull consumer on the memory event stream.
type ConsumerOptions struct {
	Name          string
	FilterSubject string
	// AckWait defaults to 30s and MaxDeliver to 5 when zero.
	AckWait    time.Duration
	MaxDeliver int
}

func (o ConsumerOptions) config() jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		Durable:       o.Name,
		FilterSubject: o.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       o.AckWait,
		MaxDeliver:    o.MaxDeliver,
	}
	if cfg.FilterSubject == "" {
		cfg.FilterSubject = SubjectMemoryAll
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	return cfg
}

// ConsumerManager creates durable consumers on StreamMemoryEvents.
type ConsumerManager struct {
	js jetstream.JetStream
}

func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer creates the consumer, or updates it when it already exists
// so that restarts resume from the stored ack floor.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, opts ConsumerOptions) (jetstream.Consumer, error) {
	if opts.Name == "" {
		return nil, errors.New("consumer name is required")
	}
	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, StreamMemoryEvents, opts.config())
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", opts.Name, StreamMemoryEvents, err)
	}
	return consumer, nil
}
