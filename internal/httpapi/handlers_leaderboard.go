package httpapi

import (
	"net/http"
	"strconv"

	"github.com/aadithya-v/focusflow"
)

const maxLeaderboardLimit = 100

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	timeframe := focusflow.Timeframe(q.Get("timeframe"))
	if timeframe == "" {
		timeframe = focusflow.TimeframeDaily
	}
	date := q.Get("date")
	if date == "" {
		date = s.svc.Today()
	}

	entries, err := s.svc.GetLeaderboard(r.Context(), date, limit, timeframe)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{
		"date":      date,
		"timeframe": timeframe,
		"entries":   entries,
	}
	userID := claimsFrom(r.Context()).Subject
	if score, ok, err := s.svc.GetUserScore(r.Context(), userID, date, timeframe); err == nil && ok {
		resp["userScore"] = score
	}
	if timeframe == focusflow.TimeframeDaily {
		if rank, ok, err := s.svc.GetUserRank(r.Context(), userID, date); err == nil && ok {
			resp["userRank"] = rank
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.Stats(r.Context(), claimsFrom(r.Context()).Subject)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatsView(stats))
}
