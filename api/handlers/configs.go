package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/conflux/engine"
	"github.com/BaSui01/conflux/types"
)

// ConfigHandler exposes configuration CRUD, history and subscription
// statistics over HTTP.
type ConfigHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(eng *engine.Engine, logger *zap.Logger) *ConfigHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigHandler{engine: eng, logger: logger}
}

// Register wires the handler's routes into mux.
func (h *ConfigHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/configs", h.HandleConfigs)
	mux.HandleFunc("/api/v1/configs/{key}", h.HandleConfigByKey)
	mux.HandleFunc("/api/v1/configs/{key}/history", h.HandleHistory)
	mux.HandleFunc("/api/v1/configs/{key}/value", h.HandleValue)
	mux.HandleFunc("/api/v1/subscriptions/stats", h.HandleSubscriptionStats)
}

// createConfigRequest is the POST /api/v1/configs body.
type createConfigRequest struct {
	Key              string         `json:"key"`
	Value            any            `json:"value"`
	Kind             string         `json:"kind"`
	Category         string         `json:"category"`
	Description      string         `json:"description"`
	ValidationSchema map[string]any `json:"validation_schema"`
}

// updateConfigRequest is the PUT /api/v1/configs/{key} body.
type updateConfigRequest struct {
	Value            any            `json:"value"`
	Description      *string        `json:"description"`
	ValidationSchema map[string]any `json:"validation_schema"`
}

// HandleConfigs handles GET (list) and POST (create) on /api/v1/configs.
func (h *ConfigHandler) HandleConfigs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

func (h *ConfigHandler) handleList(w http.ResponseWriter, r *http.Request) {
	var (
		entries []*types.ConfigEntry
		err     error
	)

	switch {
	case r.URL.Query().Get("kind") != "":
		entries, err = h.engine.ListByKind(r.Context(), types.ConfigKind(r.URL.Query().Get("kind")))
	case r.URL.Query().Get("category") != "":
		entries, err = h.engine.ListByCategory(r.Context(), r.URL.Query().Get("category"))
	default:
		entries, err = h.engine.ListAll(r.Context())
	}
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, entries)
}

func (h *ConfigHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createConfigRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	created, err := h.engine.CreateConfig(r.Context(), &types.ConfigEntry{
		Key:              strings.TrimSpace(req.Key),
		Value:            req.Value,
		Kind:             types.ConfigKind(req.Kind),
		Category:         req.Category,
		Description:      req.Description,
		ValidationSchema: req.ValidationSchema,
		CreatedBy:        actorFrom(r),
	})
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    created,
	})
}

// HandleConfigByKey handles GET, PUT and DELETE on /api/v1/configs/{key}.
func (h *ConfigHandler) HandleConfigByKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "missing configuration key", h.logger)
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := h.engine.GetConfig(r.Context(), key)
		if err != nil {
			writeErr(w, r, err, h.logger)
			return
		}
		WriteSuccess(w, r, entry)

	case http.MethodPut:
		var req updateConfigRequest
		if DecodeJSONBody(w, r, &req, h.logger) != nil {
			return
		}

		updated, err := h.engine.UpdateConfig(r.Context(), key, engine.UpdateParams{
			Value:            req.Value,
			Description:      req.Description,
			ValidationSchema: req.ValidationSchema,
			Actor:            actorFrom(r),
		})
		if err != nil {
			writeErr(w, r, err, h.logger)
			return
		}
		WriteSuccess(w, r, updated)

	case http.MethodDelete:
		deleted, err := h.engine.DeleteConfig(r.Context(), key, actorFrom(r))
		if err != nil {
			writeErr(w, r, err, h.logger)
			return
		}
		WriteSuccess(w, r, deleted)

	default:
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// HandleHistory handles GET /api/v1/configs/{key}/history.
func (h *ConfigHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	key := r.PathValue("key")
	if key == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "missing configuration key", h.logger)
		return
	}

	history, err := h.engine.GetHistory(r.Context(), key)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, history)
}

// HandleValue handles GET /api/v1/configs/{key}/value, returning only the
// current value without the entry envelope.
func (h *ConfigHandler) HandleValue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	key := r.PathValue("key")
	if key == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "missing configuration key", h.logger)
		return
	}

	entry, err := h.engine.GetConfig(r.Context(), key)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, entry.Value)
}

// HandleSubscriptionStats handles GET /api/v1/subscriptions/stats.
func (h *ConfigHandler) HandleSubscriptionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	WriteSuccess(w, r, map[string]any{
		"subscriptions": h.engine.SubscriptionStats(),
		"cache":         h.engine.CacheStats(),
	})
}
