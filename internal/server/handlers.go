package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quartermasterhq/quartermaster/internal/agent"
	"github.com/quartermasterhq/quartermaster/internal/conversation"
)

const defaultListLimit = 20

type chatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Message        string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(agent.CodeValidationFailed), "request body must be valid JSON")
		return
	}

	result, err := s.orchestrator.Chat(r.Context(), agent.ChatInput{
		UserID:         r.Header.Get("X-User-ID"),
		ConversationID: req.ConversationID,
		Provider:       req.Provider,
		Message:        req.Message,
	})
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, string(agent.CodeUnauthorized), "X-User-ID header is required")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	summaries, err := s.conversations.List(r.Context(), userID, limit)
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, string(agent.CodeUnauthorized), "X-User-ID header is required")
		return
	}

	conv, err := s.conversations.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, string(agent.CodeUnauthorized), "X-User-ID header is required")
		return
	}

	var req struct {
		Status conversation.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(agent.CodeValidationFailed), "request body must be valid JSON")
		return
	}
	switch req.Status {
	case conversation.StatusCompleted, conversation.StatusAbandoned, conversation.StatusInProgress:
	default:
		writeError(w, http.StatusBadRequest, string(agent.CodeValidationFailed), "unknown status")
		return
	}

	if err := s.conversations.SetStatus(r.Context(), userID, r.PathValue("id"), req.Status); err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": req.Status})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, string(agent.CodeUnauthorized), "X-User-ID header is required")
		return
	}

	// since is a look-back window like "24h"; absent means all time.
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, string(agent.CodeValidationFailed), "since must be a duration like 24h")
			return
		}
		since = time.Now().UTC().Add(-d)
	}

	totals, err := s.usage.TotalsByUser(r.Context(), userID, since)
	if err != nil {
		s.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.provider.Info()
	body := map[string]any{
		"status":   "ok",
		"provider": info.Provider,
		"model":    info.Model,
	}
	status := http.StatusOK
	if s.breaker != nil {
		state := s.breaker.State()
		body["circuitBreaker"] = state
		if state != "closed" {
			body["status"] = "degraded"
		}
	}
	writeJSON(w, status, body)
}

// writeAgentError maps classified failures onto HTTP statuses.
func (s *Server) writeAgentError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "conversation not found")
		return
	}

	code := agent.CodeOf(err)
	var status int
	switch code {
	case agent.CodeValidationFailed, agent.CodePromptInjectionRejected,
		agent.CodeContentModerated, agent.CodeTokenLimitExceeded:
		status = http.StatusBadRequest
	case agent.CodeUnauthorized:
		status = http.StatusUnauthorized
	case agent.CodeRateLimited:
		status = http.StatusTooManyRequests
	case agent.CodeCircuitOpen, agent.CodeProviderUnavailable:
		status = http.StatusServiceUnavailable
	case agent.CodeTimeout, agent.CodeToolTimeout:
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
	}

	message := publicMessage(err, code)
	if status >= 500 {
		s.logger.Error(r.Context(), "request failed", "code", string(code), "error", err)
	} else {
		s.logger.Info(r.Context(), "request rejected", "code", string(code), "error", err)
	}
	writeError(w, status, string(code), message)
}

// publicMessage returns the user-safe message for a classified error.
// Internal failures never leak their cause.
func publicMessage(err error, code agent.Code) string {
	var ae *agent.Error
	if errors.As(err, &ae) && code != agent.CodeInternal && code != agent.CodePersistenceFailed {
		return ae.Message
	}
	return "something went wrong, please try again"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func newRequestID() string {
	return uuid.NewString()
}
