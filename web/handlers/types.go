package handlers

import (
	"time"

	"github.com/scrypster/confidant/internal/engine"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TurnRequest is the request format for POST /api/turn.
type TurnRequest struct {
	UserID     string   `json:"user_id"`
	Message    string   `json:"message"`
	ReplyParts []string `json:"reply_parts"`
	TokensUsed int      `json:"tokens_used,omitempty"`
}

// TurnResponse is the response format for POST /api/turn. It carries the
// engine's full per-turn decision.
type TurnResponse struct {
	*engine.TurnResult
}

// StatusResponse is the response format for GET /api/status.
type StatusResponse struct {
	UserID            string              `json:"user_id"`
	Stage             string              `json:"stage"`
	InteractionCount  int                 `json:"interaction_count"`
	VisitDays         int                 `json:"visit_days"`
	LastInteractionAt time.Time           `json:"last_interaction_at,omitempty"`
	Budget            engine.BudgetStatus `json:"budget"`
	PresenceMode      string              `json:"presence_mode"`
	SituationTag      string              `json:"situation_tag,omitempty"`
}

// SituationRequest is the request format for POST /api/situation.
type SituationRequest struct {
	UserID string `json:"user_id"`
	Tag    string `json:"tag"`
}

// GoodbyeRequest is the request format for POST /api/goodbye.
type GoodbyeRequest struct {
	UserID string `json:"user_id"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
	Uptime  string `json:"uptime"`
}
