// Package focusflow is the ephemeral state service behind FocusFlow: session
// countdown timers, room presence with change notification, daily and weekly
// leaderboards, streak bitmaps, and per-user rate limits.
//
// All state lives in a shared key-value store (see the store package).
// Reads fail open: a store error is logged and reported as "absent".
// Writes are retried and surface ErrStoreUnavailable when retries run out.
package focusflow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/aadithya-v/focusflow/internal/logging"
	"github.com/aadithya-v/focusflow/store"
)

// Service is the ephemeral state service.
type Service struct {
	config  Config
	store   store.Store
	keys    Keyspace
	breaker *gobreaker.CircuitBreaker[any]
	geoip   *GeoIPReader
	log     zerolog.Logger
}

// New creates a new Service with the given configuration.
// If Store is not provided, an in-memory store is used.
func New(cfg Config) (*Service, error) {
	cfg.applyDefaults()

	s := &Service{
		config: cfg,
		keys:   NewKeyspace(cfg.Namespace),
	}

	if cfg.Logger != nil {
		s.log = *cfg.Logger
	} else {
		s.log = logging.With().Str("component", "focusflow").Logger()
	}

	if cfg.Store != nil {
		s.store = cfg.Store
	} else {
		s.store = store.NewMemoryStore(store.WithClock(cfg.Now))
	}

	if !cfg.Breaker.Disabled {
		s.breaker = newBreaker(cfg.Namespace, cfg.Breaker, s.log)
	}

	// Initialize GeoIP reader if path is provided
	if cfg.GeoIPDatabasePath != "" {
		geoip, err := NewGeoIPReader(cfg.GeoIPDatabasePath)
		if err != nil {
			s.store.Close()
			return nil, fmt.Errorf("focusflow: failed to initialize GeoIP: %w", err)
		}
		s.geoip = geoip
	}

	return s, nil
}

// Close releases all resources held by the Service, including the store.
func (s *Service) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.geoip != nil {
		if err := s.geoip.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("focusflow: errors during close: %v", errs)
	}
	return nil
}

// Keys returns the key builder used by the Service.
func (s *Service) Keys() Keyspace {
	return s.keys
}

// Now returns the Service clock's current time in the configured location.
func (s *Service) Now() time.Time {
	return s.config.Now().In(s.config.Location)
}

// HealthCheck reports whether the store answers a ping.
func (s *Service) HealthCheck(ctx context.Context) bool {
	if err := s.store.Ping(ctx); err != nil {
		s.log.Error().Err(err).Msg("Store health check failed")
		return false
	}
	return true
}

// ExtractRequestInfo extracts device and location information from an HTTP request.
// If GeoIP is not configured or the lookup fails, location contains only the IP.
func (s *Service) ExtractRequestInfo(r *http.Request) (ClientInfo, LocationInfo) {
	client := ExtractClientInfo(r)

	if s.geoip != nil && !IsPrivateIP(client.IP) {
		return client, s.geoip.LookupWithFallback(client.IP)
	}

	return client, LocationInfo{IP: client.IP}
}

func (s *Service) nowMillis() int64 {
	return s.config.Now().UnixMilli()
}
