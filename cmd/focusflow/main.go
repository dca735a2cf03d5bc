// Command focusflow runs the FocusFlow HTTP API.
//
// Configuration comes from an optional YAML file and FOCUSFLOW_ environment
// variables; see internal/config. At minimum set FOCUSFLOW_AUTH_JWT_SECRET.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aadithya-v/focusflow"
	"github.com/aadithya-v/focusflow/internal/config"
	"github.com/aadithya-v/focusflow/internal/httpapi"
	"github.com/aadithya-v/focusflow/internal/logging"
	"github.com/aadithya-v/focusflow/store"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("focusflow exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ephemeral, err := openStore(cfg.Redis)
	if err != nil {
		return err
	}

	ledger, err := openLedger(cfg.Ledger)
	if err != nil {
		ephemeral.Close()
		return err
	}
	defer ledger.Close()

	loc, err := cfg.Service.Location()
	if err != nil {
		ephemeral.Close()
		return fmt.Errorf("invalid timezone: %w", err)
	}

	// The service owns the store from here on.
	svc, err := focusflow.New(focusflow.Config{
		Namespace:         cfg.Service.Namespace,
		Store:             ephemeral,
		RetryAttempts:     cfg.Service.RetryAttempts,
		RetryBaseDelay:    cfg.Service.RetryBaseDelay,
		DistractionLimit:  cfg.Service.DistractionLimit,
		DistractionWindow: cfg.Service.DistractionWindow,
		Location:          loc,
		Breaker: focusflow.BreakerConfig{
			FailureThreshold: cfg.Service.BreakerThreshold,
			OpenTimeout:      cfg.Service.BreakerTimeout,
		},
		GeoIPDatabasePath: cfg.GeoIP.DatabasePath,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	auth, err := httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Deps{
		Service: svc,
		Ledger:  ledger,
		Auth:    auth,
	}, httpapi.Config{
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.Redis.Backend).
			Str("ledger", cfg.Ledger.Driver).
			Msg("FocusFlow listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(cfg config.RedisConfig) (store.Store, error) {
	if cfg.Backend == "memory" {
		logging.Warn().Msg("Using in-memory store; state is not shared between instances")
		return store.NewMemoryStore(), nil
	}

	rs, err := store.NewRedisFromConfig(store.RedisConfig{
		URL:          cfg.URL,
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rs, nil
}

func openLedger(cfg config.LedgerConfig) (store.SessionLedger, error) {
	switch cfg.Driver {
	case "mysql":
		l, err := store.NewMySQLFromDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open mysql ledger: %w", err)
		}
		return l, nil
	default:
		l, err := store.NewSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
		}
		return l, nil
	}
}
