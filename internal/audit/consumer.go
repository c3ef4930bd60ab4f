package audit

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	inats "github.com/aiox-platform/agentmemory/internal/nats"
)

const consumerName = "memory-audit"

// Sink stores audit entries.
type Sink interface {
	Insert(ctx context.Context, e *Entry) error
}

// Consumer reads memory events from JetStream and persists them as audit entries.
type Consumer struct {
	sink        Sink
	consumerMgr *inats.ConsumerManager
	logger      *zap.Logger
}

// NewConsumer creates a new audit Consumer.
func NewConsumer(sink Sink, consumerMgr *inats.ConsumerManager, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		sink:        sink,
		consumerMgr: consumerMgr,
		logger:      logger.With(zap.String("component", "audit_consumer")),
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.ConsumerOptions{
		Name:          consumerName,
		FilterSubject: inats.SubjectMemoryAll,
	})
	if err != nil {
		return err
	}

	c.logger.Info("audit consumer started", zap.String("consumer", consumerName))

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Debug("fetching events", zap.Error(err))
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.MemoryEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		// A malformed payload never becomes valid; drop it.
		c.logger.Error("unmarshaling event", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.Term()
		return
	}

	entry := entryFromEvent(event)
	if meta, err := msg.Metadata(); err == nil {
		entry.ID = entryID(meta.Sequence.Stream)
	}

	if err := c.sink.Insert(ctx, entry); err != nil {
		c.logger.Error("persisting audit entry", zap.String("event_type", event.Kind), zap.Error(err))
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	c.logger.Debug("persisted event",
		zap.String("event_type", event.Kind),
		zap.String("agent_id", event.AgentID),
		zap.String("memory_id", event.MemoryID),
	)
}

func entryFromEvent(event inats.MemoryEvent) *Entry {
	return &Entry{
		AgentID:    event.AgentID,
		EventType:  event.Kind,
		MemoryID:   event.MemoryID,
		MemoryType: event.Type,
		Importance: event.Importance,
		Count:      event.Count,
		CreatedAt:  event.Timestamp,
	}
}

// entryID derives a stable id from the stream sequence so redelivered
// messages map onto the row already written.
func entryID(seq uint64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(inats.StreamMemoryEvents+"/"+strconv.FormatUint(seq, 10)))
}
