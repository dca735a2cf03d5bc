package focusflow

import (
	"context"
	"time"

	"github.com/aadithya-v/focusflow/store"
)

const (
	streakTTL      = 365 * 24 * time.Hour
	streakLookback = 365
)

// UpdateStreak marks day as active in userID's streak bitmap.
// Bit n is day-of-year n (January 1st is 1). Bits are never cleared.
func (s *Service) UpdateStreak(ctx context.Context, userID string, day time.Time) error {
	key := s.keys.Streak(userID)
	offset := int64(day.In(s.config.Location).YearDay())

	err := s.exec(ctx, "update_streak", func(ctx context.Context) error {
		return s.store.Pipelined(ctx, func(b store.Batch) error {
			b.SetBit(key, offset, 1)
			b.Expire(key, streakTTL)
			return nil
		})
	})
	if err != nil {
		return unavailable("update streak", err)
	}
	return nil
}

// GetStreakDays returns the number of active days recorded in the bitmap.
// The bitmap is not rotated per year, so this is an all-time count over
// the bitmap's lifetime.
func (s *Service) GetStreakDays(ctx context.Context, userID string) int64 {
	n, err := withRetry(ctx, s, "get_streak_days", func(ctx context.Context) (int64, error) {
		return s.store.BitCount(ctx, s.keys.Streak(userID))
	})
	if err != nil {
		s.failOpen("get_streak_days", err).Str("user_id", userID).Msg("Error getting streak days")
		return 0
	}
	return n
}

// GetCurrentStreak counts consecutive active days ending today, looking back
// at most 365 days. It stops at the first inactive day.
func (s *Service) GetCurrentStreak(ctx context.Context, userID string) int {
	key := s.keys.Streak(userID)
	today := s.Now()

	streak := 0
	for i := 0; i < streakLookback; i++ {
		day := today.AddDate(0, 0, -i)
		bit, err := withRetry(ctx, s, "get_current_streak", func(ctx context.Context) (int64, error) {
			return s.store.GetBit(ctx, key, int64(day.YearDay()))
		})
		if err != nil {
			s.failOpen("get_current_streak", err).Str("user_id", userID).Msg("Error getting current streak")
			return 0
		}
		if bit == 0 {
			break
		}
		streak++
	}
	return streak
}
