package focusflow

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"

	"github.com/aadithya-v/focusflow/store"
)

// roomPresenceTTL is refreshed on every join. Members are not evicted individually.
const roomPresenceTTL = time.Hour

// JoinRoom adds userID to the room's presence hash, refreshes the hash TTL
// and publishes a user_joined event, all in one batch.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID string, data PresenceData) error {
	now := s.nowMillis()
	status := data.Status
	if status == "" {
		status = StatusIdle
	}

	record := PresenceRecord{
		UserID:   userID,
		Name:     data.Name,
		Avatar:   data.Avatar,
		Status:   status,
		Device:   data.Device,
		Location: data.Location,
		JoinedAt: now,
		LastSeen: now,
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return err
	}
	eventJSON, err := json.Marshal(RoomEvent{
		Type:      EventUserJoined,
		UserID:    userID,
		UserData:  &record,
		Timestamp: now,
	})
	if err != nil {
		return err
	}

	key := s.keys.RoomPresence(roomID)
	err = s.exec(ctx, "join_room", func(ctx context.Context) error {
		return s.store.Pipelined(ctx, func(b store.Batch) error {
			b.HSet(key, userID, string(recordJSON))
			b.Expire(key, roomPresenceTTL)
			b.Publish(s.keys.RoomChannel(roomID), string(eventJSON))
			return nil
		})
	})
	if err != nil {
		return unavailable("join room", err)
	}
	return nil
}

// LeaveRoom removes userID from the room and publishes a user_left event.
func (s *Service) LeaveRoom(ctx context.Context, roomID, userID string) error {
	eventJSON, err := json.Marshal(RoomEvent{
		Type:      EventUserLeft,
		UserID:    userID,
		Timestamp: s.nowMillis(),
	})
	if err != nil {
		return err
	}

	err = s.exec(ctx, "leave_room", func(ctx context.Context) error {
		return s.store.Pipelined(ctx, func(b store.Batch) error {
			b.HDel(s.keys.RoomPresence(roomID), userID)
			b.Publish(s.keys.RoomChannel(roomID), string(eventJSON))
			return nil
		})
	})
	if err != nil {
		return unavailable("leave room", err)
	}
	return nil
}

// UpdateUserPresence patches the member's status and lastSeen and publishes
// a user_status_changed event. It is a no-op if userID is not in the room.
//
// The read and the write are separate calls; a concurrent update between
// them is overwritten.
func (s *Service) UpdateUserPresence(ctx context.Context, roomID, userID, status string) error {
	key := s.keys.RoomPresence(roomID)
	current, err := withRetry(ctx, s, "get_user_presence", func(ctx context.Context) (string, error) {
		return s.store.HGet(ctx, key, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.failOpen("update_user_presence", err).Str("room_id", roomID).Str("user_id", userID).Msg("Error reading user presence")
		return nil
	}

	var record PresenceRecord
	if err := json.Unmarshal([]byte(current), &record); err != nil {
		s.log.Error().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("Malformed presence record")
		return nil
	}

	now := s.nowMillis()
	record.Status = status
	record.LastSeen = now

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return err
	}
	eventJSON, err := json.Marshal(RoomEvent{
		Type:      EventUserStatusChanged,
		UserID:    userID,
		Status:    status,
		Timestamp: now,
	})
	if err != nil {
		return err
	}

	err = s.exec(ctx, "update_user_presence", func(ctx context.Context) error {
		return s.store.Pipelined(ctx, func(b store.Batch) error {
			b.HSet(key, userID, string(recordJSON))
			b.Publish(s.keys.RoomChannel(roomID), string(eventJSON))
			return nil
		})
	})
	if err != nil {
		return unavailable("update user presence", err)
	}
	return nil
}

// GetRoomPresence returns the room's members keyed by user ID.
// Malformed entries are skipped. A store failure yields an empty map.
func (s *Service) GetRoomPresence(ctx context.Context, roomID string) map[string]PresenceRecord {
	users := make(map[string]PresenceRecord)

	raw, err := withRetry(ctx, s, "get_room_presence", func(ctx context.Context) (map[string]string, error) {
		return s.store.HGetAll(ctx, s.keys.RoomPresence(roomID))
	})
	if err != nil {
		s.failOpen("get_room_presence", err).Str("room_id", roomID).Msg("Error getting room presence")
		return users
	}

	for userID, data := range raw {
		var record PresenceRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			s.log.Error().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("Error parsing presence record")
			continue
		}
		users[userID] = record
	}
	return users
}

// RoomSubscription streams decoded events from one room's channel.
type RoomSubscription struct {
	sub    store.Subscription
	events chan RoomEvent
}

// Events returns the event channel. It is closed when the subscription
// is closed or its context is done.
func (r *RoomSubscription) Events() <-chan RoomEvent {
	return r.events
}

// Close unsubscribes from the room channel.
func (r *RoomSubscription) Close() error {
	return r.sub.Close()
}

// SubscribeRoom subscribes to the room's event channel. Only events
// published after the subscription is established are delivered.
// The caller must Close the subscription.
func (s *Service) SubscribeRoom(ctx context.Context, roomID string) (*RoomSubscription, error) {
	sub, err := s.store.Subscribe(ctx, s.keys.RoomChannel(roomID))
	if err != nil {
		return nil, unavailable("subscribe room", err)
	}

	r := &RoomSubscription{
		sub:    sub,
		events: make(chan RoomEvent, 16),
	}
	go s.forwardRoomEvents(ctx, roomID, r)
	return r, nil
}

func (s *Service) forwardRoomEvents(ctx context.Context, roomID string, r *RoomSubscription) {
	defer close(r.events)

	for {
		select {
		case msg, ok := <-r.sub.Messages():
			if !ok {
				return
			}
			var ev RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.Error().Err(err).Str("room_id", roomID).Msg("Malformed room event")
				continue
			}
			select {
			case r.events <- ev:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
