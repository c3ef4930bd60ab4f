package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `id, agent_id, event_type, memory_id, memory_type, importance, count, created_at`

// Repository stores the audit trail in memory_audit_log.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a single entry. Replaying an event with the same id is a no-op.
func (r *Repository) Insert(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO memory_audit_log (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.AgentID, e.EventType, e.MemoryID, e.MemoryType, e.Importance, e.Count, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit entry for %s: %w", e.AgentID, err)
	}
	return nil
}

// ListByAgent returns one page of an agent's entries, newest first, and the
// number of entries matching q across all pages.
func (r *Repository) ListByAgent(ctx context.Context, agentID string, q Query) ([]Entry, int64, error) {
	q = q.normalized()
	where, args := whereClause(agentID, q)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memory_audit_log WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}
	if total == 0 {
		return []Entry{}, 0, nil
	}

	n := len(args)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM memory_audit_log WHERE %s
		 ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, entryColumns, where, n+1, n+2),
		append(args, q.PageSize, q.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.AgentID, &e.EventType, &e.MemoryID, &e.MemoryType, &e.Importance, &e.Count, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("reading audit entries: %w", err)
	}
	return entries, total, nil
}

// whereClause builds the filter for an agent's entries with numbered
// placeholders starting at $1.
func whereClause(agentID string, q Query) (string, []any) {
	conds := []string{"agent_id = $1"}
	args := []any{agentID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.EventType != "" {
		add("event_type = $%d", q.EventType)
	}
	if q.MemoryID != "" {
		add("memory_id = $%d", q.MemoryID)
	}
	if q.Since != nil {
		add("created_at >= $%d", *q.Since)
	}
	if q.Until != nil {
		add("created_at <= $%d", *q.Until)
	}
	return strings.Join(conds, " AND "), args
}
