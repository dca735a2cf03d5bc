package focusflow

import "strings"

// Keyspace builds namespaced store keys. Every key is
// <namespace>:<category>:<id...>, so data written by other instances
// using the same namespace is shared.
type Keyspace struct {
	ns string
}

// NewKeyspace returns a Keyspace for namespace.
func NewKeyspace(namespace string) Keyspace {
	return Keyspace{ns: namespace}
}

func (k Keyspace) key(parts ...string) string {
	return k.ns + ":" + strings.Join(parts, ":")
}

// SessionTimer is the key whose TTL tracks a running session.
func (k Keyspace) SessionTimer(sessionID string) string {
	return k.key("session", "timer", sessionID)
}

// SessionState holds a session's ephemeral state as JSON.
func (k Keyspace) SessionState(sessionID string) string {
	return k.key("session", "state", sessionID)
}

// RoomPresence is the hash of members present in a room.
func (k Keyspace) RoomPresence(roomID string) string {
	return k.key("room", "presence", roomID)
}

// RoomChannel is the pub/sub channel for room events.
func (k Keyspace) RoomChannel(roomID string) string {
	return k.key("room", "channel", roomID)
}

// DailyLeaderboard takes a YYYY-MM-DD date.
func (k Keyspace) DailyLeaderboard(date string) string {
	return k.key("leaderboard", "daily", date)
}

// WeeklyLeaderboard takes a YYYY-Www ISO week.
func (k Keyspace) WeeklyLeaderboard(week string) string {
	return k.key("leaderboard", "weekly", week)
}

// LeaderboardAward is the idempotency claim for a single point award.
func (k Keyspace) LeaderboardAward(awardID string) string {
	return k.key("leaderboard", "award", awardID)
}

// Streak is the user's bitmap of active days.
func (k Keyspace) Streak(userID string) string {
	return k.key("streak", userID)
}

// RateLimit is the counter for one user on one endpoint.
func (k Keyspace) RateLimit(endpoint, userID string) string {
	return k.key("rate", endpoint, userID)
}

// DistractionLimit counts the user's recent cancellations.
func (k Keyspace) DistractionLimit(userID string) string {
	return k.key("distraction", "limit", userID)
}

// UserStatus holds the user's current presence status.
func (k Keyspace) UserStatus(userID string) string {
	return k.key("user", "status", userID)
}
