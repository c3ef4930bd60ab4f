package audit

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aiox-platform/agentmemory/internal/api"
)

// Lister reads audit entries.
type Lister interface {
	ListByAgent(ctx context.Context, agentID string, q Query) ([]Entry, int64, error)
}

// Handler serves GET /agents/{agentID}/audit.
type Handler struct {
	repo     Lister
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(repo Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:     repo,
		validate: validator.New(),
		logger:   logger.With(zap.String("component", "audit_handler")),
	}
}

// List returns one page of the agent's audit trail. Query parameters:
// event_type, memory_id, since, until (RFC 3339), page, page_size.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	agentID := chi.URLParam(r, "agentID")
	entries, total, err := h.repo.ListByAgent(r.Context(), agentID, q)
	if err != nil {
		h.logger.Error("listing audit entries", zap.String("agent_id", agentID), zap.Error(err))
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONPaginated(w, http.StatusOK, entries, total, q.Page, q.PageSize)
}

func parseQuery(v url.Values) (Query, error) {
	q := Query{
		EventType: v.Get("event_type"),
		MemoryID:  v.Get("memory_id"),
		Page:      1,
		PageSize:  defaultPageSize,
	}
	var err error
	if q.Page, err = intValue(v, "page", q.Page); err != nil {
		return q, err
	}
	if q.PageSize, err = intValue(v, "page_size", q.PageSize); err != nil {
		return q, err
	}
	if q.Since, err = timeValue(v, "since"); err != nil {
		return q, err
	}
	if q.Until, err = timeValue(v, "until"); err != nil {
		return q, err
	}
	if q.Since != nil && q.Until != nil && q.Until.Before(*q.Since) {
		return q, api.NewBadRequestError("until is before since")
	}
	return q, nil
}

func intValue(v url.Values, name string, def int) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, api.NewBadRequestError("invalid " + name)
	}
	return n, nil
}

func timeValue(v url.Values, name string) (*time.Time, error) {
	raw := v.Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, api.NewBadRequestError(name + " must be an RFC 3339 timestamp")
	}
	return &t, nil
}
