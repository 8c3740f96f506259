// Package server provides the HTTP boundary for the advisory service.
// Nothing from an upstream collaborator reaches this layer as an
// exception: every operation answers with a tagged success/failure
// payload.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	advisorx "github.com/hardlaunch/hardlaunch/agent/advisor"
	summaryx "github.com/hardlaunch/hardlaunch/agent/summary"
)

// Handler exposes the chat and summary endpoints.
type Handler struct {
	advisor       *advisorx.Advisor
	llmConfigured bool
}

func NewHandler(advisor *advisorx.Advisor, llmConfigured bool) *Handler {
	return &Handler{advisor: advisor, llmConfigured: llmConfigured}
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Post("/summary/submit", h.SubmitSummary)
		r.Get("/summary/status", h.SummaryStatus)
	})
	r.Get("/health", h.Health)
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
	Role      string `json:"role,omitempty"`
}

type chatResponse struct {
	SessionID string           `json:"session_id"`
	Reply     string           `json:"reply"`
	Summary   *summaryx.Record `json:"summary,omitempty"`
}

// Chat runs one conversational turn.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := h.advisor.Chat(r.Context(), req.SessionID, req.UserID, req.Message, req.Role)
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("chat turn failed")
		Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	JSON(w, http.StatusOK, chatResponse{
		SessionID: result.SessionID,
		Reply:     result.Reply,
		Summary:   result.Summary,
	})
}

type submitRequest struct {
	SessionID string `json:"session_id"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SubmitSummary confirms the business summary, unlocking the specialists.
func (h *Handler) SubmitSummary(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		JSON(w, http.StatusOK, submitResponse{Success: false, Message: "No session ID provided"})
		return
	}

	ok, message := h.advisor.SubmitSummary(r.Context(), req.SessionID)
	JSON(w, http.StatusOK, submitResponse{Success: ok, Message: message})
}

type statusResponse struct {
	Submitted  bool   `json:"submitted"`
	HasSummary bool   `json:"has_summary"`
	Message    string `json:"message"`
}

// SummaryStatus reports the submission state for a session.
func (h *Handler) SummaryStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		JSON(w, http.StatusOK, statusResponse{Message: "No session ID provided"})
		return
	}

	submitted, hasSummary, message := h.advisor.SummaryStatus(r.Context(), sessionID)
	JSON(w, http.StatusOK, statusResponse{
		Submitted:  submitted,
		HasSummary: hasSummary,
		Message:    message,
	})
}

// Health reports liveness and whether the completion service is
// configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"llm_configured": h.llmConfigured,
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
