package focusflow

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"

	"github.com/aadithya-v/focusflow/store"
)

const (
	// sessionStateBuffer keeps the shadow state around after the timer expires.
	sessionStateBuffer = 5 * time.Minute

	// sessionStateUpdateTTL is applied whenever the shadow state is patched.
	sessionStateUpdateTTL = 30 * time.Minute
)

// SetSessionTimer records that a session of durationMinutes started now.
// The timer expires after the session duration; its shadow state five minutes later.
// Both records are written in one batch and overwrite any previous values.
func (s *Service) SetSessionTimer(ctx context.Context, sessionID string, durationMinutes int, sessionType string) error {
	timer := SessionTimer{
		SessionID: sessionID,
		StartTime: s.nowMillis(),
		Duration:  durationMinutes,
		Type:      sessionType,
		Status:    "ACTIVE",
	}

	data, err := json.Marshal(timer)
	if err != nil {
		return err
	}

	ttl := time.Duration(durationMinutes) * time.Minute
	err = s.exec(ctx, "set_session_timer", func(ctx context.Context) error {
		return s.store.Pipelined(ctx, func(b store.Batch) error {
			b.SetEx(s.keys.SessionTimer(sessionID), string(data), ttl)
			b.SetEx(s.keys.SessionState(sessionID), string(data), ttl+sessionStateBuffer)
			return nil
		})
	})
	if err != nil {
		return unavailable("set session timer", err)
	}
	return nil
}

// GetSessionTimer returns the running timer, or nil if it expired,
// was never set, or could not be read.
func (s *Service) GetSessionTimer(ctx context.Context, sessionID string) *SessionTimer {
	key := s.keys.SessionTimer(sessionID)
	data, err := withRetry(ctx, s, "get_session_timer", func(ctx context.Context) (string, error) {
		return s.store.Get(ctx, key)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.failOpen("get_session_timer", err).Str("session_id", sessionID).Msg("Error getting session timer")
		return nil
	}

	var timer SessionTimer
	if err := json.Unmarshal([]byte(data), &timer); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Malformed session timer")
		return nil
	}
	return &timer
}

// GetSessionState returns the shadow state record, or nil if absent.
func (s *Service) GetSessionState(ctx context.Context, sessionID string) map[string]any {
	state, err := s.readSessionState(ctx, sessionID)
	if err != nil {
		s.failOpen("get_session_state", err).Str("session_id", sessionID).Msg("Error getting session state")
		return nil
	}
	return state
}

func (s *Service) readSessionState(ctx context.Context, sessionID string) (map[string]any, error) {
	key := s.keys.SessionState(sessionID)
	data, err := withRetry(ctx, s, "get_session_state", func(ctx context.Context) (string, error) {
		return s.store.Get(ctx, key)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state map[string]any
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Malformed session state")
		return nil, nil
	}
	return state, nil
}

// UpdateSessionState merges updates into the shadow state and refreshes its
// TTL to 30 minutes. It is a no-op if the shadow state is gone.
//
// The read and the write are separate calls; a concurrent update between
// them is overwritten.
func (s *Service) UpdateSessionState(ctx context.Context, sessionID string, updates map[string]any) error {
	state, err := s.readSessionState(ctx, sessionID)
	if err != nil {
		s.failOpen("update_session_state", err).Str("session_id", sessionID).Msg("Error reading session state")
		return nil
	}
	if state == nil {
		return nil
	}

	for k, v := range updates {
		state[k] = v
	}
	state["updatedAt"] = s.nowMillis()

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	err = s.exec(ctx, "update_session_state", func(ctx context.Context) error {
		return s.store.SetEx(ctx, s.keys.SessionState(sessionID), string(data), sessionStateUpdateTTL)
	})
	if err != nil {
		return unavailable("update session state", err)
	}
	return nil
}

// DeleteSessionTimer removes the timer and its shadow state.
// Deleting an absent session is not an error.
func (s *Service) DeleteSessionTimer(ctx context.Context, sessionID string) error {
	err := s.exec(ctx, "delete_session_timer", func(ctx context.Context) error {
		return s.store.Del(ctx, s.keys.SessionTimer(sessionID), s.keys.SessionState(sessionID))
	})
	if err != nil {
		return unavailable("delete session timer", err)
	}
	return nil
}
