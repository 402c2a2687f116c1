package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"consciousness-forge/baseline"
	"consciousness-forge/config"
	"consciousness-forge/internal/app"
	"consciousness-forge/keys"
	"consciousness-forge/models"
	"consciousness-forge/services"

	"github.com/go-chi/chi/v5"
)

//go:embed static/consciousness_forge.html
var forgePageHTML []byte

// maxProxyBodyBytes caps the relayed request payload
const maxProxyBodyBytes = 1 << 20

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// HandleForgePage serves the chat UI. The page is served regardless of
// whether an upstream credential is configured.
func (h *Handler) HandleForgePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(forgePageHTML)
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"services": map[string]string{
			"database":  "unknown",
			"anthropic": "unknown",
		},
	}

	if h.app.Repo() != nil {
		ctx := r.Context()
		if err := h.app.Repo().Health(ctx); err == nil {
			status["services"].(map[string]string)["database"] = "connected"
		} else {
			status["services"].(map[string]string)["database"] = "disconnected"
			status["status"] = "degraded"
		}
	} else {
		status["services"].(map[string]string)["database"] = "not_configured"
	}

	if h.app.HasCredential() {
		status["services"].(map[string]string)["anthropic"] = "configured"
	} else {
		status["services"].(map[string]string)["anthropic"] = "not_configured"
		status["status"] = "degraded"
	}

	// Key inventory across all known providers; names only, never values
	status["providers"] = keys.ValidateAll()

	// Add circuit breaker status
	cbStatus := services.GetGlobalRegistry().Status()
	status["circuit_breakers"] = cbStatus

	// Check if any breakers are open (degraded state)
	for _, cb := range cbStatus {
		if cb.State == "open" {
			status["status"] = "degraded"
			break
		}
	}

	h.jsonResponse(w, status)
}

// HandleProxyMessages relays a Messages API request using the
// server-side credential. The payload is validated structurally and
// then forwarded byte for byte; the upstream response is relayed with
// its original status, body and content type.
func (h *Handler) HandleProxyMessages(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBodyBytes))
	if err != nil {
		h.jsonError(w, "request body too large or unreadable", http.StatusBadRequest)
		return
	}

	var probe struct {
		Messages json.RawMessage `json:"messages"`
	}
	if len(body) == 0 || json.Unmarshal(body, &probe) != nil {
		h.jsonError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if !isJSONArray(probe.Messages) {
		h.jsonError(w, "field 'messages' must be a list", http.StatusBadRequest)
		return
	}

	resp, err := h.app.ProxyMessages(r.Context(), body)
	if err != nil {
		if errors.Is(err, services.ErrMissingCredential) {
			h.jsonError(w, "server credential not configured", http.StatusInternalServerError)
			return
		}
		// Transport failures report a category, never the underlying
		// error text.
		h.jsonError(w, "upstream request failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// BaselineRunRequest represents a baseline run request
type BaselineRunRequest struct {
	Model    string   `json:"model"`
	ProbeIDs []string `json:"probe_ids"`
}

// HandleRunBaseline executes a baseline probe run
func (h *Handler) HandleRunBaseline(w http.ResponseWriter, r *http.Request) {
	if !h.app.HasCredential() {
		h.jsonError(w, "server credential not configured", http.StatusServiceUnavailable)
		return
	}

	var req BaselineRunRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := h.app.RunBaseline(r.Context(), req.Model, req.ProbeIDs)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrRunInProgress):
			h.jsonError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, baseline.ErrUnknownProbe):
			h.jsonError(w, err.Error(), http.StatusBadRequest)
		default:
			h.jsonError(w, "baseline run failed", http.StatusInternalServerError)
		}
		return
	}

	h.jsonResponse(w, session)
}

// HandleGetSessions returns recent baseline sessions
func (h *Handler) HandleGetSessions(w http.ResponseWriter, r *http.Request) {
	limit := h.ParseLimitParam(r, 20)

	sessions, err := h.app.GetSessions(r.Context(), limit)
	if err != nil {
		if errors.Is(err, app.ErrNoDatabase) {
			h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if sessions == nil {
		sessions = []models.BaselineSession{}
	}
	h.jsonResponse(w, sessions)
}

// HandleGetSession returns a single baseline session by ID
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := app.ParseUUID(id); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := h.app.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, app.ErrNoDatabase) {
			h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if session == nil {
		h.jsonError(w, "session not found", http.StatusNotFound)
		return
	}

	h.jsonResponse(w, session)
}

// isJSONArray reports whether raw is a JSON array
func isJSONArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

// ParseLimitParam parses a limit query parameter with a default value
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
