// Package lifecycle drives focus sessions through start, pause, resume,
// cancel and complete. The session ledger is the record of truth; timers,
// presence, points and streaks in the ephemeral store follow it, and their
// failures after a ledger write are logged rather than returned.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aadithya-v/focusflow"
	"github.com/aadithya-v/focusflow/internal/logging"
	"github.com/aadithya-v/focusflow/internal/metrics"
	"github.com/aadithya-v/focusflow/store"
)

// State is the part of the ephemeral state service the coordinator uses.
// *focusflow.Service implements it.
type State interface {
	Now() time.Time
	Today() string
	RateLimit(ctx context.Context, userID, endpoint string, limit int, window time.Duration) focusflow.RateLimitResult
	CheckDistractionLimit(ctx context.Context, userID string) focusflow.DistractionResult
	SetSessionTimer(ctx context.Context, sessionID string, durationMinutes int, sessionType string) error
	UpdateSessionState(ctx context.Context, sessionID string, updates map[string]any) error
	DeleteSessionTimer(ctx context.Context, sessionID string) error
	SetUserStatus(ctx context.Context, userID, status, roomID string) error
	AwardPoints(ctx context.Context, awardID, userID string, points int, date string) (bool, error)
	UpdateStreak(ctx context.Context, userID string, day time.Time) error
	GetStreakDays(ctx context.Context, userID string) int64
	GetCurrentStreak(ctx context.Context, userID string) int
	GetUserRank(ctx context.Context, userID, date string) (int, bool, error)
}

// Config tunes the coordinator.
type Config struct {
	// StartLimit session starts are allowed per StartWindow.
	// Default: 10 per 5 minutes.
	StartLimit  int
	StartWindow time.Duration

	// PointsPerMinute is awarded for each minute of a completed focus session.
	// Default: 2.
	PointsPerMinute int

	// DefaultHistory and MaxHistory bound History's limit.
	// Default: 50 and 200.
	DefaultHistory int
	MaxHistory     int

	// StatsDays is the length of the daily series returned by Stats.
	// Default: 7.
	StatsDays int
}

func (c *Config) applyDefaults() {
	if c.StartLimit <= 0 {
		c.StartLimit = 10
	}
	if c.StartWindow <= 0 {
		c.StartWindow = 5 * time.Minute
	}
	if c.PointsPerMinute <= 0 {
		c.PointsPerMinute = 2
	}
	if c.DefaultHistory <= 0 {
		c.DefaultHistory = 50
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 200
	}
	if c.StatsDays <= 0 {
		c.StatsDays = 7
	}
}

// Coordinator runs session transitions against the ledger and the state service.
type Coordinator struct {
	state  State
	ledger store.SessionLedger
	cfg    Config
}

// New creates a Coordinator.
func New(state State, ledger store.SessionLedger, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{state: state, ledger: ledger, cfg: cfg}
}

// StartRequest describes a session to start.
type StartRequest struct {
	Type            string
	DurationMinutes int
	RoomID          string
}

// CancelResult is returned by Cancel.
type CancelResult struct {
	Session   *store.SessionRecord
	Remaining int // cancellations left in the current window
}

// CompleteResult is returned by Complete.
type CompleteResult struct {
	Session *store.SessionRecord
	Points  int  // zero for breaks
	Awarded bool // false if the points were already awarded
}

// Stats summarizes a user's progress.
type Stats struct {
	Today         store.DailyStats
	StreakDays    int64
	CurrentStreak int
	Rank          int // zero when unranked today
	Week          []store.DailyStats
}

// Start records a new session and starts its timer.
func (c *Coordinator) Start(ctx context.Context, userID string, req StartRequest) (*store.SessionRecord, error) {
	if !validType(req.Type) || req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: type %q, duration %d", ErrInvalidSession, req.Type, req.DurationMinutes)
	}

	limit := c.state.RateLimit(ctx, userID, "session_start", c.cfg.StartLimit, c.cfg.StartWindow)
	if !limit.Allowed {
		return nil, &LimitError{Err: ErrRateLimited, Remaining: limit.Remaining, RetryAfter: limit.ResetIn}
	}

	now := c.state.Now()
	rec := &store.SessionRecord{
		ID:              uuid.NewString(),
		UserID:          userID,
		Type:            req.Type,
		DurationMinutes: req.DurationMinutes,
		Status:          store.SessionActive,
		RoomID:          req.RoomID,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.ledger.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("lifecycle: create session: %w", err)
	}

	if err := c.state.SetSessionTimer(ctx, rec.ID, rec.DurationMinutes, rec.Type); err != nil {
		// Don't leave an ACTIVE session without a timer behind.
		if uerr := c.ledger.UpdateSessionStatus(ctx, userID, rec.ID, store.SessionCancelled, c.state.Now(), store.SessionActive); uerr != nil {
			logging.Ctx(ctx).Error().Err(uerr).Str("session_id", rec.ID).Msg("Failed to cancel session after timer failure")
		}
		return nil, err
	}
	if err := c.state.SetUserStatus(ctx, userID, activityStatus(rec.Type), rec.RoomID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", rec.ID).Msg("Failed to set user status on start")
	}

	metrics.SessionTransitions.WithLabelValues("start", rec.Type).Inc()
	return rec, nil
}

// Pause pauses an active session.
func (c *Coordinator) Pause(ctx context.Context, userID, sessionID string) (*store.SessionRecord, error) {
	rec, err := c.transition(ctx, userID, sessionID, store.SessionPaused, store.SessionActive)
	if err != nil {
		return nil, err
	}

	c.followUp(ctx, rec, "pause",
		c.state.UpdateSessionState(ctx, sessionID, map[string]any{"status": string(store.SessionPaused)}),
		c.state.SetUserStatus(ctx, userID, focusflow.StatusIdle, rec.RoomID),
	)
	return rec, nil
}

// Resume resumes a paused session.
func (c *Coordinator) Resume(ctx context.Context, userID, sessionID string) (*store.SessionRecord, error) {
	rec, err := c.transition(ctx, userID, sessionID, store.SessionActive, store.SessionPaused)
	if err != nil {
		return nil, err
	}

	c.followUp(ctx, rec, "resume",
		c.state.UpdateSessionState(ctx, sessionID, map[string]any{"status": string(store.SessionActive)}),
		c.state.SetUserStatus(ctx, userID, activityStatus(rec.Type), rec.RoomID),
	)
	return rec, nil
}

// Cancel abandons a session and counts it against the user's distraction limit.
func (c *Coordinator) Cancel(ctx context.Context, userID, sessionID string) (*CancelResult, error) {
	rec, err := c.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s session cannot be cancelled", ErrInvalidTransition, rec.Status)
	}

	limit := c.state.CheckDistractionLimit(ctx, userID)
	if !limit.Allowed {
		return nil, &LimitError{Err: ErrDistractionLimited, Remaining: limit.Remaining}
	}

	rec, err = c.transition(ctx, userID, sessionID, store.SessionCancelled, store.SessionActive, store.SessionPaused)
	if err != nil {
		return nil, err
	}

	now := c.state.Now()
	c.followUp(ctx, rec, "cancel",
		c.state.DeleteSessionTimer(ctx, sessionID),
		c.state.SetUserStatus(ctx, userID, focusflow.StatusIdle, ""),
		c.ledger.RecordDistraction(ctx, store.DistractionEvent{UserID: userID, SessionID: sessionID, CreatedAt: now}),
		c.ledger.AddDailyStats(ctx, store.DailyStats{UserID: userID, Date: c.state.Today(), Distractions: 1}),
	)
	return &CancelResult{Session: rec, Remaining: limit.Remaining}, nil
}

// Complete finishes a session. Focus sessions earn PointsPerMinute points per
// minute, once per session, and mark today in the user's streak.
func (c *Coordinator) Complete(ctx context.Context, userID, sessionID string) (*CompleteResult, error) {
	rec, err := c.transition(ctx, userID, sessionID, store.SessionCompleted, store.SessionActive, store.SessionPaused)
	if err != nil {
		return nil, err
	}

	c.followUp(ctx, rec, "complete",
		c.state.DeleteSessionTimer(ctx, sessionID),
		c.state.SetUserStatus(ctx, userID, focusflow.StatusIdle, ""),
	)

	res := &CompleteResult{Session: rec}
	if rec.Type != focusflow.SessionFocus {
		return res, nil
	}

	res.Points = rec.DurationMinutes * c.cfg.PointsPerMinute
	today := c.state.Today()

	awarded, err := c.state.AwardPoints(ctx, rec.ID, userID, res.Points, today)
	if awarded {
		res.Awarded = true
		metrics.PointsAwarded.Add(float64(res.Points))
	}
	c.followUp(ctx, rec, "complete", err,
		c.state.UpdateStreak(ctx, userID, c.state.Now()),
		c.ledger.AddDailyStats(ctx, store.DailyStats{
			UserID:            userID,
			Date:              today,
			FocusMinutes:      rec.DurationMinutes,
			SessionsCompleted: 1,
			Points:            res.Points,
		}),
	)
	return res, nil
}

// Stats returns today's totals, streaks, today's rank and a daily series
// ending today.
func (c *Coordinator) Stats(ctx context.Context, userID string) (*Stats, error) {
	now := c.state.Now()
	today := c.state.Today()

	stats := &Stats{
		Today:         store.DailyStats{UserID: userID, Date: today},
		StreakDays:    c.state.GetStreakDays(ctx, userID),
		CurrentStreak: c.state.GetCurrentStreak(ctx, userID),
	}

	if rank, ok, err := c.state.GetUserRank(ctx, userID, today); err == nil && ok {
		stats.Rank = rank
	}

	from := now.AddDate(0, 0, -(c.cfg.StatsDays - 1)).Format(time.DateOnly)
	rows, err := c.ledger.ListDailyStats(ctx, userID, from, today)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list daily stats: %w", err)
	}
	byDate := make(map[string]store.DailyStats, len(rows))
	for _, row := range rows {
		byDate[row.Date] = row
	}

	stats.Week = make([]store.DailyStats, c.cfg.StatsDays)
	for i := range stats.Week {
		date := now.AddDate(0, 0, i-(c.cfg.StatsDays-1)).Format(time.DateOnly)
		row, ok := byDate[date]
		if !ok {
			row = store.DailyStats{UserID: userID, Date: date}
		}
		stats.Week[i] = row
	}
	stats.Today = stats.Week[len(stats.Week)-1]

	return stats, nil
}

// History returns the user's sessions, newest first. limit <= 0 means
// DefaultHistory; larger values are capped at MaxHistory.
func (c *Coordinator) History(ctx context.Context, userID string, limit int) ([]*store.SessionRecord, error) {
	switch {
	case limit <= 0:
		limit = c.cfg.DefaultHistory
	case limit > c.cfg.MaxHistory:
		limit = c.cfg.MaxHistory
	}

	sessions, err := c.ledger.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list sessions: %w", err)
	}
	return sessions, nil
}

// Session returns one of the user's sessions.
func (c *Coordinator) Session(ctx context.Context, userID, sessionID string) (*store.SessionRecord, error) {
	return c.session(ctx, userID, sessionID)
}

func (c *Coordinator) session(ctx context.Context, userID, sessionID string) (*store.SessionRecord, error) {
	rec, err := c.ledger.GetSession(ctx, userID, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lifecycle: get session: %w", err)
	}
	return rec, nil
}

// transition moves the session to status if its current status is one of from.
func (c *Coordinator) transition(ctx context.Context, userID, sessionID string, status store.SessionStatus, from ...store.SessionStatus) (*store.SessionRecord, error) {
	rec, err := c.session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, s := range from {
		if rec.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, rec.Status, status)
	}

	now := c.state.Now()
	err = c.ledger.UpdateSessionStatus(ctx, userID, sessionID, status, now, from...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if errors.Is(err, store.ErrStatusConflict) {
		// Another request transitioned the session after it was read.
		return nil, fmt.Errorf("%w: %s to %s: %w", ErrInvalidTransition, rec.Status, status, err)
	}
	if err != nil {
		return nil, fmt.Errorf("lifecycle: update session: %w", err)
	}

	rec.Status = status
	rec.UpdatedAt = now
	if status.Terminal() {
		rec.EndedAt = now
	}
	metrics.SessionTransitions.WithLabelValues(transitionName(status), rec.Type).Inc()
	return rec, nil
}

// followUp logs failures of the writes that trail a ledger transition.
func (c *Coordinator) followUp(ctx context.Context, rec *store.SessionRecord, transition string, errs ...error) {
	if err := errors.Join(errs...); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("session_id", rec.ID).
			Str("transition", transition).
			Msg("Session follow-up failed")
	}
}

func transitionName(status store.SessionStatus) string {
	switch status {
	case store.SessionPaused:
		return "pause"
	case store.SessionActive:
		return "resume"
	case store.SessionCancelled:
		return "cancel"
	case store.SessionCompleted:
		return "complete"
	}
	return "unknown"
}

func validType(t string) bool {
	switch t {
	case focusflow.SessionFocus, focusflow.SessionShortBreak, focusflow.SessionLongBreak:
		return true
	}
	return false
}

// activityStatus is the presence status shown while a session of type t runs.
func activityStatus(t string) string {
	if t == focusflow.SessionFocus {
		return focusflow.StatusFocus
	}
	return focusflow.StatusBreak
}
