package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aadithya-v/focusflow/internal/assistant"
	"github.com/aadithya-v/focusflow/internal/logging"
	"github.com/aadithya-v/focusflow/store"
)

type chatRequest struct {
	Message string `json:"message" validate:"required,max=500"`
}

type oracleRequest struct {
	Prompt string `json:"prompt" validate:"required,max=300"`
}

type oracleFeedbackRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Resonates *bool  `json:"resonates" validate:"required"`
}

const (
	defaultOracleHistory = 7
	maxOracleHistory     = 30
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "message cannot be empty")
		return
	}

	userID := claimsFrom(r.Context()).Subject
	limit := s.svc.RateLimit(r.Context(), userID, "ai_chat", s.cfg.ChatLimit, s.cfg.ChatWindow)
	if !limit.Allowed {
		writeLimited(w, "RATE_LIMITED", "Too many messages. Please wait a moment before continuing.", limit.Remaining, limit.ResetIn)
		return
	}

	reply, err := s.chat.Generate(r.Context(), req.Message)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Chat generation failed")
		writeError(w, http.StatusInternalServerError, "ASSISTANT_UNAVAILABLE", "The assistant is unavailable. Try again in a moment.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"response": assistant.Clean(reply, assistant.MaxChatReply)})
}

// handleOracle gives the user one oracle reading per day. The ledger's
// per-day record is authoritative; the rate limit backs it up.
func (s *Server) handleOracle(w http.ResponseWriter, r *http.Request) {
	var req oracleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "prompt cannot be empty")
		return
	}

	ctx := r.Context()
	userID := claimsFrom(ctx).Subject
	today := s.svc.Today()

	existing, err := s.ledger.GetOracleMessage(ctx, userID, today)
	switch {
	case err == nil:
		s.writeOracleTaken(w, existing)
		return
	case !errors.Is(err, store.ErrNotFound):
		s.writeServiceError(w, r, err)
		return
	}

	limit := s.svc.RateLimit(ctx, userID, "oracle_consult", 1, s.cfg.OracleWindow)
	if !limit.Allowed {
		writeLimited(w, "RATE_LIMITED", "The Oracle's energy is depleted for today. Return tomorrow.", limit.Remaining, limit.ResetIn)
		return
	}

	reply, err := s.oracle.Generate(ctx, prompt)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Oracle generation failed")
		writeError(w, http.StatusInternalServerError, "ASSISTANT_UNAVAILABLE", "The Oracle is silent. Try again later.")
		return
	}

	msg := &store.OracleMessage{
		UserID:    userID,
		Date:      today,
		Prompt:    prompt,
		Message:   assistant.Clean(reply, assistant.MaxOracleReply),
		CreatedAt: s.svc.Now(),
	}
	err = s.ledger.SaveOracleMessage(ctx, msg)
	if errors.Is(err, store.ErrAlreadyExists) {
		// A concurrent request won.
		if existing, err := s.ledger.GetOracleMessage(ctx, userID, today); err == nil {
			s.writeOracleTaken(w, existing)
			return
		}
		writeLimited(w, "DAILY_LIMIT_REACHED", "The Oracle speaks only once per day. Return tomorrow.", 0, 0)
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"oracle": newOracleView(msg)})
}

func (s *Server) writeOracleTaken(w http.ResponseWriter, msg *store.OracleMessage) {
	remaining := 0
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error: apiError{
			Code:    "DAILY_LIMIT_REACHED",
			Message: "The Oracle speaks only once per day. Return tomorrow.",
		},
		Remaining: &remaining,
		Oracle:    newOracleView(msg),
	})
}

func (s *Server) handleOracleToday(w http.ResponseWriter, r *http.Request) {
	msg, err := s.ledger.GetOracleMessage(r.Context(), claimsFrom(r.Context()).Subject, s.svc.Today())
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"oracle": nil})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"oracle": newOracleView(msg)})
}

func (s *Server) handleOracleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultOracleHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = min(n, maxOracleHistory)
	}

	messages, err := s.ledger.ListOracleMessages(r.Context(), claimsFrom(r.Context()).Subject, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	history := make([]*oracleView, 0, len(messages))
	for _, m := range messages {
		history = append(history, newOracleView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleOracleFeedback(w http.ResponseWriter, r *http.Request) {
	var req oracleFeedbackRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	err := s.ledger.SetOracleFeedback(r.Context(), claimsFrom(r.Context()).Subject, req.Date, *req.Resonates)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ORACLE_NOT_FOUND", "No oracle message for that date")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleDeepWorkQuote always answers 200; generator failures get the
// default quote.
func (s *Server) handleDeepWorkQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := s.quote.Generate(r.Context(), "")
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Quote generation failed")
		quote = assistant.DefaultQuote
	}

	quote = assistant.Clean(quote, assistant.MaxQuote)
	if quote == "" {
		quote = assistant.DefaultQuote
	}
	writeJSON(w, http.StatusOK, map[string]any{"quote": quote})
}
