package focusflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aadithya-v/focusflow/store"
)

const (
	dateLayout = "2006-01-02"

	dailyLeaderboardTTL  = 7 * 24 * time.Hour
	weeklyLeaderboardTTL = 30 * 24 * time.Hour

	// awardClaimTTL outlives the daily leaderboard the award was added to.
	awardClaimTTL = 8 * 24 * time.Hour

	defaultLeaderboardLimit = 10
)

// Today returns the current calendar date as YYYY-MM-DD.
func (s *Service) Today() string {
	return s.Now().Format(dateLayout)
}

// parseDate parses a YYYY-MM-DD date in the configured location.
// An empty date means today.
func (s *Service) parseDate(date string) (time.Time, string, error) {
	if date == "" {
		now := s.Now()
		return now, now.Format(dateLayout), nil
	}
	t, err := time.ParseInLocation(dateLayout, date, s.config.Location)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, date, nil
}

// WeekKey returns the ISO week of t as YYYY-Www, using the ISO week-year.
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// AddToLeaderboard adds points to userID's score on the daily board for date
// and on the weekly board for date's ISO week, in one batch.
// An empty date means today.
func (s *Service) AddToLeaderboard(ctx context.Context, userID string, points int, date string) error {
	day, date, err := s.parseDate(date)
	if err != nil {
		return err
	}

	dailyKey := s.keys.DailyLeaderboard(date)
	weeklyKey := s.keys.WeeklyLeaderboard(WeekKey(day))

	err = s.exec(ctx, "add_to_leaderboard", func(ctx context.Context) error {
		return s.store.Pipelined(ctx, func(b store.Batch) error {
			b.ZIncrBy(dailyKey, float64(points), userID)
			b.Expire(dailyKey, dailyLeaderboardTTL)
			b.ZIncrBy(weeklyKey, float64(points), userID)
			b.Expire(weeklyKey, weeklyLeaderboardTTL)
			return nil
		})
	})
	if err != nil {
		return unavailable("add to leaderboard", err)
	}
	return nil
}

// AwardPoints adds points at most once per awardID. It returns false without
// changing any score if awardID was already awarded. If the increment fails
// the claim is released so the award can be retried.
func (s *Service) AwardPoints(ctx context.Context, awardID, userID string, points int, date string) (bool, error) {
	if _, _, err := s.parseDate(date); err != nil {
		return false, err
	}

	claimKey := s.keys.LeaderboardAward(awardID)
	claimed, err := withRetry(ctx, s, "claim_award", func(ctx context.Context) (bool, error) {
		return s.store.SetNX(ctx, claimKey, userID, awardClaimTTL)
	})
	if err != nil {
		return false, unavailable("claim award", err)
	}
	if !claimed {
		return false, nil
	}

	if err := s.AddToLeaderboard(ctx, userID, points, date); err != nil {
		if delErr := s.store.Del(ctx, claimKey); delErr != nil {
			s.log.Error().Err(delErr).Str("award_id", awardID).Msg("Failed to release award claim")
		}
		return false, err
	}
	return true, nil
}

// GetLeaderboard returns the top limit entries for the timeframe containing
// date, highest score first. Equal scores keep the store's order. An empty
// date means today; limit <= 0 means 10. A store failure yields an empty list.
func (s *Service) GetLeaderboard(ctx context.Context, date string, limit int, timeframe Timeframe) ([]LeaderboardEntry, error) {
	day, date, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}

	var key string
	switch timeframe {
	case TimeframeDaily, "":
		key = s.keys.DailyLeaderboard(date)
	case TimeframeWeekly:
		key = s.keys.WeeklyLeaderboard(WeekKey(day))
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeframe, timeframe)
	}

	members, err := withRetry(ctx, s, "get_leaderboard", func(ctx context.Context) ([]store.ScoredMember, error) {
		return s.store.ZRevRangeWithScores(ctx, key, 0, int64(limit-1))
	})
	if err != nil {
		s.failOpen("get_leaderboard", err).Str("key", key).Msg("Error getting leaderboard")
		return []LeaderboardEntry{}, nil
	}

	entries := make([]LeaderboardEntry, len(members))
	for i, m := range members {
		entries[i] = LeaderboardEntry{
			Rank:   i + 1,
			UserID: m.Member,
			Score:  m.Score,
		}
	}
	return entries, nil
}

// GetUserRank returns userID's 1-based rank on the daily board for date.
// ok is false if the user has no score that day or the store failed.
func (s *Service) GetUserRank(ctx context.Context, userID, date string) (rank int, ok bool, err error) {
	_, date, err = s.parseDate(date)
	if err != nil {
		return 0, false, err
	}
	key := s.keys.DailyLeaderboard(date)

	asc, err := withRetry(ctx, s, "get_user_rank", func(ctx context.Context) (int64, error) {
		return s.store.ZRank(ctx, key, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		s.failOpen("get_user_rank", err).Str("user_id", userID).Msg("Error getting user rank")
		return 0, false, nil
	}

	total, err := withRetry(ctx, s, "get_leaderboard_size", func(ctx context.Context) (int64, error) {
		return s.store.ZCard(ctx, key)
	})
	if err != nil {
		s.failOpen("get_user_rank", err).Str("user_id", userID).Msg("Error getting leaderboard size")
		return 0, false, nil
	}
	if total <= asc {
		// Member vanished between the two reads.
		return 0, false, nil
	}

	return int(total - asc), true, nil
}

// GetUserScore returns userID's points on the board for timeframe containing
// date. ok is false if the user has no score there or the store failed.
func (s *Service) GetUserScore(ctx context.Context, userID, date string, timeframe Timeframe) (score float64, ok bool, err error) {
	day, date, err := s.parseDate(date)
	if err != nil {
		return 0, false, err
	}

	var key string
	switch timeframe {
	case TimeframeDaily, "":
		key = s.keys.DailyLeaderboard(date)
	case TimeframeWeekly:
		key = s.keys.WeeklyLeaderboard(WeekKey(day))
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidTimeframe, timeframe)
	}

	score, err = withRetry(ctx, s, "get_user_score", func(ctx context.Context) (float64, error) {
		return s.store.ZScore(ctx, key, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		s.failOpen("get_user_score", err).Str("user_id", userID).Msg("Error getting user score")
		return 0, false, nil
	}
	return score, true, nil
}
