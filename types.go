package focusflow

import "time"

// Session types.
const (
	SessionFocus      = "FOCUS"
	SessionShortBreak = "SHORT_BREAK"
	SessionLongBreak  = "LONG_BREAK"
)

// User presence statuses.
const (
	StatusFocus = "focus"
	StatusBreak = "break"
	StatusIdle  = "idle"
)

// SessionTimer is the countdown record of a running session.
type SessionTimer struct {
	SessionID string `json:"sessionId"`
	StartTime int64  `json:"startTime"` // unix milliseconds
	Duration  int    `json:"duration"`  // minutes
	Type      string `json:"type"`
	Status    string `json:"status"`
}

// EndsAt returns when the timer runs out.
func (t *SessionTimer) EndsAt() time.Time {
	return time.UnixMilli(t.StartTime).Add(time.Duration(t.Duration) * time.Minute)
}

// Remaining returns the time left at now, never negative.
func (t *SessionTimer) Remaining(now time.Time) time.Duration {
	if d := t.EndsAt().Sub(now); d > 0 {
		return d
	}
	return 0
}

// ClientInfo describes the device a user joined from.
type ClientInfo struct {
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
	DeviceType string `json:"deviceType,omitempty"` // mobile, desktop, tablet, bot
}

// LocationInfo contains geographic location resolved from an IP address.
type LocationInfo struct {
	IP        string  `json:"ip,omitempty"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// PresenceData is the caller-supplied part of a presence record.
type PresenceData struct {
	Name     string
	Avatar   string
	Status   string
	Device   *ClientInfo
	Location *LocationInfo
}

// PresenceRecord is a user's entry in a room's presence hash.
type PresenceRecord struct {
	UserID   string        `json:"userId"`
	Name     string        `json:"name,omitempty"`
	Avatar   string        `json:"avatar,omitempty"`
	Status   string        `json:"status"`
	Device   *ClientInfo   `json:"device,omitempty"`
	Location *LocationInfo `json:"location,omitempty"`
	JoinedAt int64         `json:"joinedAt"` // unix milliseconds
	LastSeen int64         `json:"lastSeen"` // unix milliseconds
}

// Room event types.
const (
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventUserStatusChanged = "user_status_changed"
)

// RoomEvent is published on a room's channel when membership or status changes.
type RoomEvent struct {
	Type      string          `json:"type"`
	UserID    string          `json:"userId"`
	UserData  *PresenceRecord `json:"userData,omitempty"`
	Status    string          `json:"status,omitempty"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// Timeframe selects the daily or weekly leaderboard.
type Timeframe string

const (
	TimeframeDaily  Timeframe = "daily"
	TimeframeWeekly Timeframe = "weekly"
)

// LeaderboardEntry is one ranked row of a leaderboard.
type LeaderboardEntry struct {
	Rank   int     `json:"rank"` // 1-based
	UserID string  `json:"userId"`
	Score  float64 `json:"score"`
}

// RateLimitResult is the outcome of a fixed-window rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Count     int64         // calls counted in the current window
	Remaining int           // calls left in the current window
	ResetIn   time.Duration // zero when unknown
}

// DistractionResult is the outcome of a distraction limit check.
type DistractionResult struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// UserStatus is a user's short-lived activity status.
type UserStatus struct {
	Status    string  `json:"status"`
	RoomID    *string `json:"roomId"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}
