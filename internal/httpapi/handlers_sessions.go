package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aadithya-v/focusflow"
	"github.com/aadithya-v/focusflow/internal/lifecycle"
	"github.com/aadithya-v/focusflow/internal/logging"
)

type startSessionRequest struct {
	Type     string `json:"type" validate:"required,oneof=FOCUS SHORT_BREAK LONG_BREAK"`
	Duration int    `json:"duration" validate:"required,min=1,max=180"`
	RoomID   string `json:"roomId" validate:"omitempty,max=64"`
}

type sessionActionRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=64"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	rec, err := s.coord.Start(r.Context(), claimsFrom(r.Context()).Subject, lifecycle.StartRequest{
		Type:            req.Type,
		DurationMinutes: req.Duration,
		RoomID:          req.RoomID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": rec.ID,
		"session":   newSessionView(rec),
	})
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	var req sessionActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	rec, err := s.coord.Pause(r.Context(), claimsFrom(r.Context()).Subject, req.SessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": newSessionView(rec)})
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	var req sessionActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	rec, err := s.coord.Resume(r.Context(), claimsFrom(r.Context()).Subject, req.SessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": newSessionView(rec)})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	var req sessionActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	res, err := s.coord.Cancel(r.Context(), claimsFrom(r.Context()).Subject, req.SessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"remaining": res.Remaining,
		"session":   newSessionView(res.Session),
	})
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	var req sessionActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	res, err := s.coord.Complete(r.Context(), claimsFrom(r.Context()).Subject, req.SessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"points":  res.Points,
		"awarded": res.Awarded,
		"session": newSessionView(res.Session),
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer")
			return
		}
		limit = n
	}

	sessions, err := s.coord.History(r.Context(), claimsFrom(r.Context()).Subject, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	views := make([]sessionView, len(sessions))
	for i, rec := range sessions {
		views[i] = newSessionView(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *Server) handleSessionTimer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// Only the owner may read a timer.
	if _, err := s.coord.Session(r.Context(), claimsFrom(r.Context()).Subject, sessionID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	timer := s.svc.GetSessionTimer(r.Context(), sessionID)
	if timer == nil {
		writeError(w, http.StatusNotFound, "TIMER_NOT_FOUND", "No running timer for this session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timer":            timer,
		"remainingSeconds": int64(timer.Remaining(s.svc.Now()).Seconds()),
	})
}

// writeServiceError maps lifecycle and service errors to responses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var limitErr *lifecycle.LimitError
	switch {
	case errors.As(err, &limitErr) && errors.Is(err, lifecycle.ErrDistractionLimited):
		writeLimited(w, "RATE_LIMITED",
			fmt.Sprintf("You've reached the maximum number of cancellations for this hour. %d attempts remaining.", limitErr.Remaining),
			limitErr.Remaining, limitErr.RetryAfter)
	case errors.As(err, &limitErr):
		writeLimited(w, "RATE_LIMITED", "Too many session starts. Please wait a moment.", limitErr.Remaining, limitErr.RetryAfter)
	case errors.Is(err, lifecycle.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidSession),
		errors.Is(err, focusflow.ErrInvalidDate),
		errors.Is(err, focusflow.ErrInvalidTimeframe):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, focusflow.ErrStoreUnavailable):
		logging.Ctx(r.Context()).Error().Err(err).Msg("Store unavailable")
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Service temporarily unavailable")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
