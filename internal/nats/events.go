package nats

import "time"

// FetchTimeout bounds one batch fetch from a consumer.
const FetchTimeout = 2 * time.Second

// StreamMemoryEvents holds every memory lifecycle event.
const StreamMemoryEvents = "AGENTMEMORY_EVENTS"

// Subject constants.
const (
	SubjectMemoryPrefix  = "agentmemory.events"
	SubjectMemoryStored  = SubjectMemoryPrefix + ".stored"
	SubjectMemoryDeleted = SubjectMemoryPrefix + ".deleted"
	SubjectMemoryCleared = SubjectMemoryPrefix + ".cleared"
	SubjectMemoryAll     = SubjectMemoryPrefix + ".>"
)

// Memory event kinds, also the last subject token.
const (
	EventStored  = "stored"
	EventDeleted = "deleted"
	EventCleared = "cleared"
)

// MemoryEvent is published after a memory changes.
type MemoryEvent struct {
	Kind       string    `json:"event_type"`
	AgentID    string    `json:"agent_id"`
	MemoryID   string    `json:"memory_id,omitempty"`
	Type       string    `json:"type,omitempty"`
	Importance float64   `json:"importance,omitempty"`
	Count      int       `json:"count,omitempty"` // records removed by a clear
	Timestamp  time.Time `json:"timestamp"`
}

// Subject returns the subject the event is published on.
func (e MemoryEvent) Subject() string {
	return SubjectMemoryPrefix + "." + e.Kind
}
