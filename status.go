package focusflow

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"

	"github.com/aadithya-v/focusflow/store"
)

const userStatusTTL = 5 * time.Minute

// SetUserStatus records userID's activity status for five minutes. If roomID
// is set, the user's presence in that room is updated too.
func (s *Service) SetUserStatus(ctx context.Context, userID, status, roomID string) error {
	record := UserStatus{
		Status:    status,
		Timestamp: s.nowMillis(),
	}
	if roomID != "" {
		record.RoomID = &roomID
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	err = s.exec(ctx, "set_user_status", func(ctx context.Context) error {
		return s.store.SetEx(ctx, s.keys.UserStatus(userID), string(data), userStatusTTL)
	})
	if err != nil {
		return unavailable("set user status", err)
	}

	if roomID != "" {
		return s.UpdateUserPresence(ctx, roomID, userID, status)
	}
	return nil
}

// GetUserStatus returns userID's status, or nil if absent or unreadable.
func (s *Service) GetUserStatus(ctx context.Context, userID string) *UserStatus {
	key := s.keys.UserStatus(userID)
	data, err := withRetry(ctx, s, "get_user_status", func(ctx context.Context) (string, error) {
		return s.store.Get(ctx, key)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.failOpen("get_user_status", err).Str("user_id", userID).Msg("Error getting user status")
		return nil
	}

	var status UserStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Malformed user status")
		return nil
	}
	return &status
}
