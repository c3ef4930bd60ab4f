package memory

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aiox-platform/agentmemory/internal/api"
)

const defaultImportance = 0.5

// Handler handles memory HTTP endpoints under /agents/{agentID}.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a new memory handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger.With(zap.String("component", "memory_handler")),
	}
}

type listParams struct {
	Limit int `validate:"gte=1,lte=100"`
}

type searchParams struct {
	Limit         int     `validate:"gte=1,lte=50"`
	MinSimilarity float64 `validate:"gte=0,lte=1"`
}

type summaryParams struct {
	MaxTokens int `validate:"gte=0"`
}

func agentID(r *http.Request) string {
	return chi.URLParam(r, "agentID")
}

// intParam reads an integer query parameter, falling back to def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, api.NewBadRequestError("invalid " + name)
	}
	return v, nil
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, api.NewBadRequestError("invalid " + name)
	}
	return v, nil
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, api.NewBadRequestError("invalid " + name)
	}
	return v, nil
}

// fail maps service errors onto API errors.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidAgent):
		api.HandleError(w, api.NewBadRequestError(err.Error()))
	case errors.Is(err, ErrNotFound):
		api.HandleError(w, api.NewNotFoundError("memory not found"))
	default:
		var appErr *api.AppError
		if errors.As(err, &appErr) {
			api.HandleError(w, appErr)
			return
		}
		h.logger.Error(op, zap.Error(err))
		api.HandleError(w, api.ErrInternalServer)
	}
}

// public drops embeddings from records leaving the API.
func public(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.Embedding = nil
		out[i] = r
	}
	return out
}

// Create stores a new memory for the agent.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	importance := defaultImportance
	if req.Importance != nil {
		importance = *req.Importance
	}
	id, err := h.svc.Store(r.Context(), StoreRequest{
		AgentID:    agentID(r),
		Content:    req.Content,
		Type:       req.Type,
		Metadata:   req.Metadata,
		Importance: importance,
		UserID:     req.UserID,
		ExpiresIn:  req.ExpiresIn,
	})
	if err != nil {
		h.fail(w, "storing memory", err)
		return
	}

	api.JSON(w, http.StatusCreated, map[string]string{"id": id})
}

// List returns the agent's most recent memories.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(listParams{Limit: limit}); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	records, err := h.svc.RetrieveRecent(r.Context(), agentID(r), RecentQuery{
		Limit: limit,
		Type:  r.URL.Query().Get("type"),
	})
	if err != nil {
		h.fail(w, "listing memories", err)
		return
	}
	api.JSON(w, http.StatusOK, public(records))
}

// Important returns the agent's memories by descending importance.
func (h *Handler) Important(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(listParams{Limit: limit}); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	records, err := h.svc.RetrieveImportant(r.Context(), agentID(r), limit)
	if err != nil {
		h.fail(w, "listing important memories", err)
		return
	}
	api.JSON(w, http.StatusOK, public(records))
}

// Search finds memories matching the query parameter.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	minSim, err := floatParam(r, "min_similarity", h.svc.opts.MinSimilarity)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	semantic, err := boolParam(r, "semantic", true)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(searchParams{Limit: limit, MinSimilarity: minSim}); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	results, err := h.svc.Search(r.Context(), agentID(r), SearchQuery{
		Query:         r.URL.Query().Get("query"),
		Limit:         limit,
		MinSimilarity: minSim,
		Semantic:      semantic,
	})
	if err != nil {
		h.fail(w, "searching memories", err)
		return
	}
	for i := range results {
		results[i].Embedding = nil
	}
	api.JSON(w, http.StatusOK, results)
}

// Summary renders the agent's important memories as text.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	maxTokens, err := intParam(r, "max_tokens", 500)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(summaryParams{MaxTokens: maxTokens}); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	summary, err := h.svc.Summarize(r.Context(), agentID(r), maxTokens)
	if err != nil {
		h.fail(w, "summarizing memories", err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// Get returns one memory.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), agentID(r), chi.URLParam(r, "memoryID"))
	if err != nil {
		h.fail(w, "getting memory", err)
		return
	}
	rec.Embedding = nil
	api.JSON(w, http.StatusOK, rec)
}

// UpdateImportance re-scores a memory.
func (h *Handler) UpdateImportance(w http.ResponseWriter, r *http.Request) {
	var req UpdateImportanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	err := h.svc.UpdateImportance(r.Context(), agentID(r), chi.URLParam(r, "memoryID"), *req.Importance, req.Metadata)
	if err != nil {
		h.fail(w, "updating memory importance", err)
		return
	}
	api.JSONMessage(w, http.StatusOK, "memory updated successfully")
}

// Delete deletes a single memory.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), agentID(r), chi.URLParam(r, "memoryID")); err != nil {
		h.fail(w, "deleting memory", err)
		return
	}
	api.JSONMessage(w, http.StatusOK, "memory deleted successfully")
}

// Clear deletes all memories of the agent.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Clear(r.Context(), agentID(r))
	if err != nil {
		h.fail(w, "clearing memories", err)
		return
	}
	api.JSON(w, http.StatusOK, map[string]int{"count": n})
}

// RecordInteraction stores a user/agent exchange.
func (h *Handler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	id, err := h.svc.RecordInteraction(r.Context(), agentID(r), req.UserID, Interaction{
		UserInput:     req.UserInput,
		AgentResponse: req.AgentResponse,
		Context:       req.Context,
	})
	if err != nil {
		h.fail(w, "recording interaction", err)
		return
	}
	api.JSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Recall returns the memories relevant to the query parameter.
func (h *Handler) Recall(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.Recall(r.Context(), agentID(r), r.URL.Query().Get("query"))
	if err != nil {
		h.fail(w, "recalling memories", err)
		return
	}
	api.JSON(w, http.StatusOK, public(records))
}
