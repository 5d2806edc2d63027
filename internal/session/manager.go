// Package session owns the current authenticated identity and its lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pi-trace/registry/internal/cache"
	"github.com/pi-trace/registry/internal/domain/identity"
	"github.com/pi-trace/registry/internal/events"
	"github.com/pi-trace/registry/internal/metrics"
	"github.com/pi-trace/registry/internal/remote"
	"github.com/pi-trace/registry/internal/wallet"
	"github.com/pi-trace/registry/pkg/logger"
)

// ErrAuthUnavailable means the wallet capability is absent or the user
// declined. It is non-fatal; callers fall back to LoginAsGuest.
var ErrAuthUnavailable = errors.New("wallet authentication unavailable")

// Manager owns the current identity. All other components hold read copies
// obtained through Current.
type Manager struct {
	mu      sync.RWMutex
	current identity.Identity

	remote *remote.Client
	cache  *cache.Cache
	wallet wallet.Wallet
	hub    *events.Hub
	log    *logger.Logger

	resume       ResumePolicy
	onIncomplete wallet.IncompleteFunc
	onLogout     []func()
}

// NewManager creates a session manager. w may be nil when no wallet
// capability is present (guest-only deployments).
func NewManager(rc *remote.Client, c *cache.Cache, w wallet.Wallet, hub *events.Hub, log *logger.Logger) *Manager {
	return &Manager{
		remote: rc,
		cache:  c,
		wallet: w,
		hub:    hub,
		log:    log.Named("session"),
		resume: TrustCached(),
	}
}

// WithResumePolicy overrides the session-resume validation policy.
func (m *Manager) WithResumePolicy(p ResumePolicy) {
	if p != nil {
		m.resume = p
	}
}

// SetIncompleteHandler installs the handler the wallet SDK's
// incomplete-payment callback is forwarded to. It is registered once, by the
// payment coordinator, before the first login.
func (m *Manager) SetIncompleteHandler(fn wallet.IncompleteFunc) {
	m.mu.Lock()
	m.onIncomplete = fn
	m.mu.Unlock()
}

// OnLogout registers a hook run after the session is torn down. The payment
// coordinator uses this to cancel in-flight polls.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	m.onLogout = append(m.onLogout, fn)
	m.mu.Unlock()
}

// Current returns the active identity, if any.
func (m *Manager) Current() (identity.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, !m.current.IsZero()
}

// LoginWithWallet authenticates through the external wallet. Remote store
// registration failure is a degraded mode, not an error: the session proceeds
// with the SDK-derived identity.
func (m *Manager) LoginWithWallet(ctx context.Context) (identity.Identity, error) {
	if m.wallet == nil {
		return identity.Identity{}, ErrAuthUnavailable
	}

	res, err := m.wallet.Authenticate(ctx, wallet.DefaultScopes(), m.fireIncomplete)
	if err != nil {
		m.log.WithError(err).Warn("wallet authentication failed")
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}

	username := res.Username
	if username == "" {
		username = "Pi User"
	}
	ident := identity.Identity{
		UID:           res.UID,
		Username:      username,
		Kind:          identity.KindWallet,
		WalletAddress: res.WalletAddress,
	}

	ident = m.register(ctx, ident, res.AccessToken)
	m.activate(ctx, ident)

	m.hub.Publish(events.LevelSuccess, "Successfully logged in with Pi Wallet!")
	m.log.WithField("uid", ident.UID).Info("wallet login successful")
	return ident, nil
}

// LoginAsGuest starts a guest session. It never fails: remote registration
// failure degrades to a local-only identity.
func (m *Manager) LoginAsGuest(ctx context.Context) identity.Identity {
	ident := identity.Guest(time.Now())
	ident = m.register(ctx, ident, "")
	m.activate(ctx, ident)

	m.hub.Publish(events.LevelInfo, "Welcome! Continuing as Guest.")
	m.log.WithField("uid", ident.UID).Info("guest login successful")
	return ident
}

// register attempts POST /auth and merges the server record and token into
// the identity. On failure the SDK-derived identity is kept unchanged.
func (m *Manager) register(ctx context.Context, ident identity.Identity, accessToken string) identity.Identity {
	result, err := m.remote.RegisterUser(ctx, remote.AuthRequest{
		Username:      ident.Username,
		UID:           ident.UID,
		AccessToken:   accessToken,
		LoginType:     ident.Kind,
		WalletAddress: ident.WalletAddress,
	})
	if err != nil {
		metrics.CacheFallback("auth")
		m.log.WithError(err).Warn("remote registration failed, continuing in degraded mode")
		m.hub.Publish(events.LevelWarning, "Logged in offline - some features may be limited")
		return ident
	}

	merged := ident
	if result.User.UID != "" {
		merged.UID = result.User.UID
	}
	if result.User.Username != "" {
		merged.Username = result.User.Username
	}
	if result.User.WalletAddress != "" {
		merged.WalletAddress = result.User.WalletAddress
	}
	merged.Token = result.Token
	m.remote.SetToken(result.Token)
	return merged
}

func (m *Manager) activate(ctx context.Context, ident identity.Identity) {
	m.mu.Lock()
	m.current = ident
	m.mu.Unlock()

	if err := m.cache.SaveIdentity(ctx, ident); err != nil {
		m.log.WithError(err).Warn("failed to persist identity")
	}
}

// Logout clears the identity from memory and the local cache and runs the
// registered teardown hooks. It is idempotent.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	hadSession := !m.current.IsZero()
	m.current = identity.Identity{}
	hooks := make([]func(), len(m.onLogout))
	copy(hooks, m.onLogout)
	m.mu.Unlock()

	m.remote.ClearToken()
	if err := m.cache.ClearIdentity(ctx); err != nil {
		m.log.WithError(err).Warn("failed to clear cached identity")
	}
	if err := m.cache.ClearProducts(ctx); err != nil {
		m.log.WithError(err).Warn("failed to clear cached products")
	}

	for _, fn := range hooks {
		fn()
	}

	if hadSession {
		m.hub.Publish(events.LevelInfo, "You have been logged out.")
		m.log.Info("logged out")
	}
}

// Resume restores a previously persisted identity without re-contacting the
// remote store. The resume policy decides whether the cached session is still
// acceptable.
func (m *Manager) Resume(ctx context.Context) (identity.Identity, bool) {
	cached, ok, err := m.cache.LoadIdentity(ctx)
	if err != nil {
		m.log.WithError(err).Warn("failed to read cached identity")
		return identity.Identity{}, false
	}
	if !ok || cached.IsZero() {
		return identity.Identity{}, false
	}
	if err := m.resume(cached); err != nil {
		m.log.WithError(err).WithField("uid", cached.UID).Info("cached session rejected")
		if clearErr := m.cache.ClearIdentity(ctx); clearErr != nil {
			m.log.WithError(clearErr).Warn("failed to clear rejected identity")
		}
		return identity.Identity{}, false
	}

	m.mu.Lock()
	m.current = cached
	m.mu.Unlock()
	if cached.Token != "" {
		m.remote.SetToken(cached.Token)
	}

	m.log.WithField("uid", cached.UID).Info("resumed session")
	return cached, true
}

func (m *Manager) fireIncomplete(identifier string) {
	m.mu.RLock()
	fn := m.onIncomplete
	m.mu.RUnlock()
	if fn != nil {
		fn(identifier)
	}
}
