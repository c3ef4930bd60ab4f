package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/aiox-platform/agentmemory/internal/nats"
)

// fakeMsg records how a message was settled; other Msg methods panic.
type fakeMsg struct {
	jetstream.Msg
	data    []byte
	seq     uint64
	metaErr error
	settled string
}

func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Subject() string { return inats.SubjectMemoryStored }
func (m *fakeMsg) Ack() error      { m.settled = "ack"; return nil }
func (m *fakeMsg) Nak() error      { m.settled = "nak"; return nil }
func (m *fakeMsg) Term() error     { m.settled = "term"; return nil }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	if m.metaErr != nil {
		return nil, m.metaErr
	}
	return &jetstream.MsgMetadata{Sequence: jetstream.SequencePair{Stream: m.seq}}, nil
}

type fakeSink struct {
	entries []*Entry
	err     error
}

func (s *fakeSink) Insert(_ context.Context, e *Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func eventMsg(t *testing.T, event inats.MemoryEvent, seq uint64) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return &fakeMsg{data: data, seq: seq}
}

func TestEntryFromEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := entryFromEvent(inats.MemoryEvent{
		Kind:       inats.EventStored,
		AgentID:    "agent-1",
		MemoryID:   "memory_1",
		Type:       "fact",
		Importance: 0.7,
		Timestamp:  ts,
	})

	assert.Equal(t, "agent-1", e.AgentID)
	assert.Equal(t, inats.EventStored, e.EventType)
	assert.Equal(t, "memory_1", e.MemoryID)
	assert.Equal(t, "fact", e.MemoryType)
	assert.Equal(t, 0.7, e.Importance)
	assert.Equal(t, ts, e.CreatedAt)
	assert.Equal(t, uuid.Nil, e.ID)
}

func TestHandleEvent_PersistsAndAcks(t *testing.T) {
	sink := &fakeSink{}
	c := NewConsumer(sink, nil, nil)
	msg := eventMsg(t, inats.MemoryEvent{Kind: inats.EventCleared, AgentID: "a", Count: 3}, 42)

	c.handleEvent(context.Background(), msg)

	assert.Equal(t, "ack", msg.settled)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, 3, sink.entries[0].Count)
	assert.Equal(t, entryID(42), sink.entries[0].ID)
}

func TestHandleEvent_RedeliveryKeepsID(t *testing.T) {
	sink := &fakeSink{}
	c := NewConsumer(sink, nil, nil)
	event := inats.MemoryEvent{Kind: inats.EventDeleted, AgentID: "a", MemoryID: "m"}

	c.handleEvent(context.Background(), eventMsg(t, event, 7))
	c.handleEvent(context.Background(), eventMsg(t, event, 7))
	c.handleEvent(context.Background(), eventMsg(t, event, 8))

	require.Len(t, sink.entries, 3)
	assert.Equal(t, sink.entries[0].ID, sink.entries[1].ID)
	assert.NotEqual(t, sink.entries[0].ID, sink.entries[2].ID)
}

func TestHandleEvent_NoMetadataLeavesIDUnset(t *testing.T) {
	sink := &fakeSink{}
	c := NewConsumer(sink, nil, nil)
	msg := eventMsg(t, inats.MemoryEvent{Kind: inats.EventStored, AgentID: "a"}, 1)
	msg.metaErr = errors.New("not a jetstream message")

	c.handleEvent(context.Background(), msg)

	assert.Equal(t, "ack", msg.settled)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, uuid.Nil, sink.entries[0].ID)
}

func TestHandleEvent_MalformedIsTerminated(t *testing.T) {
	sink := &fakeSink{}
	c := NewConsumer(sink, nil, nil)
	msg := &fakeMsg{data: []byte("{not json")}

	c.handleEvent(context.Background(), msg)

	assert.Equal(t, "term", msg.settled)
	assert.Empty(t, sink.entries)
}

func TestHandleEvent_SinkErrorNaks(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	c := NewConsumer(sink, nil, nil)
	msg := eventMsg(t, inats.MemoryEvent{Kind: inats.EventStored, AgentID: "a"}, 1)

	c.handleEvent(context.Background(), msg)

	assert.Equal(t, "nak", msg.settled)
}
