package httpapi

import (
	"time"

	"github.com/aadithya-v/focusflow/internal/lifecycle"
	"github.com/aadithya-v/focusflow/store"
)

type sessionView struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Duration  int        `json:"duration"`
	Status    string     `json:"status"`
	RoomID    string     `json:"roomId,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

func newSessionView(rec *store.SessionRecord) sessionView {
	v := sessionView{
		ID:        rec.ID,
		Type:      rec.Type,
		Duration:  rec.DurationMinutes,
		Status:    string(rec.Status),
		RoomID:    rec.RoomID,
		StartedAt: rec.StartedAt,
	}
	if !rec.EndedAt.IsZero() {
		ended := rec.EndedAt
		v.EndedAt = &ended
	}
	return v
}

type dailyStatsView struct {
	Date              string `json:"date"`
	FocusMinutes      int    `json:"focusMinutes"`
	SessionsCompleted int    `json:"sessionsCompleted"`
	Points            int    `json:"points"`
	Distractions      int    `json:"distractions"`
}

func newDailyStatsView(s store.DailyStats) dailyStatsView {
	return dailyStatsView{
		Date:              s.Date,
		FocusMinutes:      s.FocusMinutes,
		SessionsCompleted: s.SessionsCompleted,
		Points:            s.Points,
		Distractions:      s.Distractions,
	}
}

type statsView struct {
	Today         dailyStatsView   `json:"today"`
	StreakDays    int64            `json:"streakDays"`
	CurrentStreak int              `json:"currentStreak"`
	Rank          *int             `json:"rank"`
	Week          []dailyStatsView `json:"week"`
}

func newStatsView(s *lifecycle.Stats) statsView {
	v := statsView{
		Today:         newDailyStatsView(s.Today),
		StreakDays:    s.StreakDays,
		CurrentStreak: s.CurrentStreak,
		Week:          make([]dailyStatsView, len(s.Week)),
	}
	if s.Rank > 0 {
		rank := s.Rank
		v.Rank = &rank
	}
	for i, day := range s.Week {
		v.Week[i] = newDailyStatsView(day)
	}
	return v
}

type oracleView struct {
	Date      string    `json:"date"`
	Prompt    string    `json:"prompt"`
	Message   string    `json:"message"`
	Resonates *bool     `json:"resonates"`
	CreatedAt time.Time `json:"createdAt"`
}

func newOracleView(m *store.OracleMessage) *oracleView {
	return &oracleView{
		Date:      m.Date,
		Prompt:    m.Prompt,
		Message:   m.Message,
		Resonates: m.Resonates,
		CreatedAt: m.CreatedAt,
	}
}
