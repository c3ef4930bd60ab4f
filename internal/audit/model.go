package audit

import (
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Entry is one row of memory_audit_log.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	AgentID    string    `json:"agent_id"`
	EventType  string    `json:"event_type"`
	MemoryID   string    `json:"memory_id,omitempty"`
	MemoryType string    `json:"memory_type,omitempty"`
	Importance float64   `json:"importance,omitempty"`
	Count      int       `json:"count,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Query filters and pages an agent's audit trail. Zero values mean no filter.
type Query struct {
	EventType string `validate:"omitempty,oneof=stored deleted cleared"`
	MemoryID  string
	Since     *time.Time
	Until     *time.Time
	Page      int `validate:"gte=1"`
	PageSize  int `validate:"gte=1,lte=100"`
}

// normalized clamps paging to the first page of defaultPageSize entries.
func (q Query) normalized() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > maxPageSize {
		q.PageSize = defaultPageSize
	}
	return q
}

func (q Query) offset() int {
	return (q.Page - 1) * q.PageSize
}
