// gateway is the client-side application daemon. It owns the session, the
// product registry and the payment coordinator and exposes them to the view
// layer over a local HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pi-trace/registry/internal/cache"
	"github.com/pi-trace/registry/internal/config"
	"github.com/pi-trace/registry/internal/events"
	"github.com/pi-trace/registry/internal/httpapi"
	"github.com/pi-trace/registry/internal/payments"
	"github.com/pi-trace/registry/internal/products"
	"github.com/pi-trace/registry/internal/remote"
	"github.com/pi-trace/registry/internal/session"
	"github.com/pi-trace/registry/internal/wallet"
	"github.com/pi-trace/registry/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadGateway()
	if err != nil {
		return err
	}
	log := logger.NewFromEnv("gateway", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	hub := events.NewHub()
	localCache := cache.New(store)
	remoteClient := remote.New(remote.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
		Rate:    cfg.RequestRate,
		Burst:   cfg.RequestBurst,
	}, log)

	w, err := buildWallet(cfg, log)
	if err != nil {
		return err
	}

	sessions := session.NewManager(remoteClient, localCache, w, hub, log)
	if cfg.ResumeVerifyExpiry {
		sessions.WithResumePolicy(session.VerifyTokenExpiry(nil))
	}

	registry := products.NewRegistry(sessions, remoteClient, localCache, hub, log)

	timeoutPolicy := payments.TimeoutLeaveApproved
	if cfg.PollTimeoutFails {
		timeoutPolicy = payments.TimeoutMarkFailed
	}
	coordinator := payments.NewCoordinator(sessions, remoteClient, w, hub, log, payments.Config{
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
		Timeout:         timeoutPolicy,
		VerifyRecovered: cfg.VerifyRecovered,
	})
	defer coordinator.Close()

	syncJob, err := products.NewSyncJob(registry, cfg.SyncSchedule, log)
	if err != nil {
		return err
	}
	syncJob.Start()
	defer syncJob.Stop()

	// Restore a cached session so the view starts where the user left off.
	if ident, resumed := sessions.Resume(ctx); resumed {
		log.WithField("uid", ident.UID).Info("restored previous session")
	}

	api := httpapi.New(sessions, registry, coordinator, hub, log)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).WithField("api_base", cfg.APIBaseURL).
			Info("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildCache selects the local fallback store backend.
func buildCache(ctx context.Context, cfg config.Gateway) (cache.Store, func(), error) {
	switch cfg.CacheBackend {
	case "file":
		store, err := cache.NewFileStore(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "redis":
		store, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("dial redis: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// buildWallet selects the wallet capability. "none" yields a guest-only
// gateway; wallet login returns an auth-unavailable error the view falls back
// from.
func buildWallet(cfg config.Gateway, log *logger.Logger) (wallet.Wallet, error) {
	switch cfg.Wallet {
	case "none":
		return nil, nil
	case "sandbox":
		return wallet.NewSandbox(log, 0), nil
	default:
		return nil, fmt.Errorf("unknown wallet backend %q", cfg.Wallet)
	}
}
