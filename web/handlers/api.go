// Package handlers provides HTTP handlers and middleware for the
// Confidant REST API.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/scrypster/confidant/internal/config"
	"github.com/scrypster/confidant/internal/engine"
)

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	engine  *engine.Engine
	config  *config.Config
	hub     *WebSocketHub
	started time.Time

	// storageState reports the persistence circuit state for health checks.
	storageState func() string
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(eng *engine.Engine, cfg *config.Config) *APIHandlers {
	return &APIHandlers{
		engine:  eng,
		config:  cfg,
		started: time.Now(),
	}
}

// SetHub attaches a WebSocket hub; turn outcomes are then published as
// delivery events.
func (h *APIHandlers) SetHub(hub *WebSocketHub) {
	h.hub = hub
}

// SetStorageState attaches a function reporting persistence health,
// surfaced in GET /api/health.
func (h *APIHandlers) SetStorageState(fn func() string) {
	h.storageState = fn
}

// RegisterRoutes wires all API routes onto the mux.
func (h *APIHandlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/turn", h.ProcessTurn)
	mux.HandleFunc("/api/status", h.Status)
	mux.HandleFunc("/api/situation", h.EnterSituation)
	mux.HandleFunc("/api/goodbye", h.EnterGoodbye)
	mux.HandleFunc("/api/health", h.Health)
}

// ProcessTurn handles POST /api/turn - run one user message through the
// engagement engine and return the delivery plan.
func (h *APIHandlers) ProcessTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required", nil)
		return
	}

	result := h.engine.ProcessTurn(r.Context(), engine.TurnInput{
		UserID:     req.UserID,
		Message:    req.Message,
		ReplyParts: req.ReplyParts,
		TokensUsed: req.TokensUsed,
	})

	if h.hub != nil && !result.Silent {
		h.scheduleDeliveryEvents(result)
	}

	respondJSON(w, http.StatusOK, TurnResponse{TurnResult: result})
}

// scheduleDeliveryEvents publishes each planned message to the WebSocket
// hub after its computed delay, so observers see deliveries as they would
// reach the user.
func (h *APIHandlers) scheduleDeliveryEvents(result *engine.TurnResult) {
	elapsed := time.Duration(0)
	for _, msg := range result.Messages {
		elapsed += msg.Delay
		event := DeliveryEvent{
			Type:   "message",
			UserID: result.UserID,
			Text:   msg.Text,
			Stage:  result.Stage,
		}
		time.AfterFunc(elapsed, func() { h.hub.Broadcast(event) })
	}
	if result.Asset != nil {
		asset := *result.Asset
		time.AfterFunc(elapsed, func() {
			h.hub.Broadcast(DeliveryEvent{
				Type:   "media",
				UserID: result.UserID,
				Asset:  &asset,
				Stage:  result.Stage,
			})
		})
	}
}

// Status handles GET /api/status - report the engagement snapshot for a
// user without processing a message.
func (h *APIHandlers) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	rec, budget, presence := h.engine.Status(r.Context(), userID)
	respondJSON(w, http.StatusOK, StatusResponse{
		UserID:            userID,
		Stage:             rec.EffectiveStage(),
		InteractionCount:  rec.InteractionCount,
		VisitDays:         rec.VisitDays,
		LastInteractionAt: rec.LastInteractionAt,
		Budget:            budget,
		PresenceMode:      presence.Mode,
		SituationTag:      presence.SituationTag,
	})
}

// EnterSituation handles POST /api/situation - start a scripted
// unavailability narrative for a user.
func (h *APIHandlers) EnterSituation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req SituationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID == "" || req.Tag == "" {
		respondError(w, http.StatusBadRequest, "user_id and tag are required", nil)
		return
	}

	if err := h.engine.EnterSituation(req.UserID, req.Tag); err != nil {
		respondError(w, http.StatusBadRequest, "unknown situation tag", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "busy", "tag": req.Tag})
}

// EnterGoodbye handles POST /api/goodbye - take the companion offline for
// a user immediately.
func (h *APIHandlers) EnterGoodbye(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req GoodbyeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	h.engine.EnterGoodbye(req.UserID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "offline-goodbye"})
}

// Health handles GET /api/health - liveness plus persistence circuit state.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	}
	if h.storageState != nil {
		resp.Storage = h.storageState()
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing more we can do.
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
