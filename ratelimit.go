package focusflow

import (
	"context"
	"time"

	"github.com/aadithya-v/focusflow/internal/metrics"
)

// CheckRateLimit reports whether userID may call endpoint again, allowing
// limit calls per fixed window. Store failures allow the call.
func (s *Service) CheckRateLimit(ctx context.Context, userID, endpoint string, limit int, window time.Duration) bool {
	return s.RateLimit(ctx, userID, endpoint, limit, window).Allowed
}

// RateLimit counts a call against userID's fixed-window counter for endpoint.
// The window starts at the first call and the counter resets when it expires,
// so bursts across a window boundary may exceed limit.
func (s *Service) RateLimit(ctx context.Context, userID, endpoint string, limit int, window time.Duration) RateLimitResult {
	res, ok := s.fixedWindow(ctx, "rate_limit", s.keys.RateLimit(endpoint, userID), limit, window)
	if !ok {
		return RateLimitResult{Allowed: true, Remaining: limit}
	}
	if !res.Allowed {
		metrics.RateLimitRejections.WithLabelValues(endpoint).Inc()
	}
	return res
}

// CheckDistractionLimit counts a session cancellation. Users get
// DistractionLimit cancellations per DistractionWindow (5 per hour by default).
// Store failures allow the cancellation.
func (s *Service) CheckDistractionLimit(ctx context.Context, userID string) DistractionResult {
	limit := s.config.DistractionLimit

	res, ok := s.fixedWindow(ctx, "distraction_limit", s.keys.DistractionLimit(userID), limit, s.config.DistractionWindow)
	if !ok {
		return DistractionResult{Allowed: true, Remaining: limit}
	}
	if !res.Allowed {
		metrics.RateLimitRejections.WithLabelValues("distraction").Inc()
	}
	return DistractionResult{Allowed: res.Allowed, Remaining: res.Remaining}
}

// fixedWindow increments the counter at key. ok is false if the store failed.
func (s *Service) fixedWindow(ctx context.Context, op, key string, limit int, window time.Duration) (RateLimitResult, bool) {
	count, err := withRetry(ctx, s, op, func(ctx context.Context) (int64, error) {
		return s.store.Incr(ctx, key)
	})
	if err != nil {
		s.failOpen(op, err).Str("key", key).Msg("Rate limit check failed, allowing")
		return RateLimitResult{}, false
	}

	resetIn := window
	if count == 1 {
		s.startWindow(ctx, op, key, window)
	} else {
		ttl, err := s.store.TTL(ctx, key)
		switch {
		case err != nil:
			resetIn = 0
		case ttl <= 0:
			// A counter without expiry would never reset.
			s.startWindow(ctx, op, key, window)
		default:
			resetIn = ttl
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   count <= int64(limit),
		Count:     count,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, true
}

func (s *Service) startWindow(ctx context.Context, op, key string, window time.Duration) {
	err := s.exec(ctx, op+"_expire", func(ctx context.Context) error {
		return s.store.Expire(ctx, key, window)
	})
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Failed to set rate limit window")
	}
}
