// Package payments implements the payment lifecycle coordinator: it registers
// payment intent with the remote store, drives the payment through the
// external wallet's approval flow and polls the remote status to completion
// or terminal failure.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pi-trace/registry/internal/domain/payment"
	"github.com/pi-trace/registry/internal/domain/product"
	"github.com/pi-trace/registry/internal/events"
	"github.com/pi-trace/registry/internal/metrics"
	"github.com/pi-trace/registry/internal/remote"
	"github.com/pi-trace/registry/internal/session"
	"github.com/pi-trace/registry/internal/wallet"
	"github.com/pi-trace/registry/pkg/logger"
)

var (
	// ErrNoSession rejects payment operations without an active identity.
	ErrNoSession = errors.New("no active session")
	// ErrInvalidAmount rejects non-positive amounts before any request.
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrPaymentRejected means remote registration itself failed. There is no
	// local-only fallback for money movement.
	ErrPaymentRejected = errors.New("payment registration rejected")
	// ErrWalletDeclined means the wallet call failed or the user rejected the
	// payment. The remote record survives so the user can retry.
	ErrWalletDeclined = errors.New("wallet payment declined")
	// ErrUnverifiedRecovery rejects an incomplete-payment recovery whose
	// identifier matches no known local record (verification policy on).
	ErrUnverifiedRecovery = errors.New("recovered payment identifier matches no local record")
)

// TimeoutPolicy decides what happens when the poll ceiling is reached
// without a terminal status.
type TimeoutPolicy int

const (
	// TimeoutLeaveApproved stops polling silently; the payment stays
	// approved until a later reconciliation observes it.
	TimeoutLeaveApproved TimeoutPolicy = iota
	// TimeoutMarkFailed moves the local record to failed and notifies.
	TimeoutMarkFailed
)

// Config tunes the coordinator.
type Config struct {
	PollInterval    time.Duration // default 3s
	MaxPollAttempts int           // default 10
	Timeout         TimeoutPolicy
	// VerifyRecovered requires the recovered identifier to match a local
	// record before it is marked completed remotely. Off by default: the
	// wallet SDK's identifier is trusted as-is.
	VerifyRecovered bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 10
	}
	return c
}

// Coordinator owns all payment records and their poll loops. At most one
// poll runs per payment id; logging out cancels every poll.
type Coordinator struct {
	mu           sync.Mutex
	records      map[string]*payment.Payment
	byIdentifier map[string]string
	polls        map[string]context.CancelFunc
	wg           sync.WaitGroup

	sessions *session.Manager
	remote   *remote.Client
	wallet   wallet.Wallet
	hub      *events.Hub
	log      *logger.Logger
	cfg      Config
}

// NewCoordinator creates a coordinator and wires it into the session
// lifecycle: the wallet SDK's incomplete-payment callback is registered once,
// and logout cancels in-flight polls.
func NewCoordinator(sessions *session.Manager, rc *remote.Client, w wallet.Wallet, hub *events.Hub, log *logger.Logger, cfg Config) *Coordinator {
	c := &Coordinator{
		records:      make(map[string]*payment.Payment),
		byIdentifier: make(map[string]string),
		polls:        make(map[string]context.CancelFunc),
		sessions:     sessions,
		remote:       rc,
		wallet:       w,
		hub:          hub,
		log:          log.Named("payments"),
		cfg:          cfg.withDefaults(),
	}
	sessions.SetIncompleteHandler(c.handleIncomplete)
	sessions.OnLogout(c.CancelPolls)
	return c
}

// InitiateRequest describes a payment to create.
type InitiateRequest struct {
	Amount      float64           `json:"amount"`
	Memo        string            `json:"memo"`
	Metadata    map[string]string `json:"metadata"`
	ServiceType string            `json:"serviceType,omitempty"`
	ProductID   string            `json:"productId,omitempty"`
}

// Initiate registers payment intent remotely and, for wallet identities,
// drives it through the wallet approval flow. Guest identities stop at
// created: the payment is recorded but cannot be driven to completion.
func (c *Coordinator) Initiate(ctx context.Context, req InitiateRequest) (payment.Payment, error) {
	ident, ok := c.sessions.Current()
	if !ok {
		return payment.Payment{}, ErrNoSession
	}
	if req.Amount <= 0 {
		return payment.Payment{}, ErrInvalidAmount
	}

	created, err := c.remote.CreatePayment(ctx, remote.CreatePaymentRequest{
		Amount:      req.Amount,
		Memo:        req.Memo,
		Metadata:    req.Metadata,
		ServiceType: req.ServiceType,
		ProductID:   req.ProductID,
	})
	if err != nil {
		c.hub.Publish(events.LevelError, "Payment failed: could not reach the payment service")
		return payment.Payment{}, fmt.Errorf("%w: %v", ErrPaymentRejected, err)
	}

	rec := created.Clone()
	rec.Status = payment.StatusCreated
	rec.OwnerID = ident.UID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	c.mu.Lock()
	c.records[rec.PaymentID] = &rec
	c.mu.Unlock()
	metrics.PaymentTransition(string(payment.StatusCreated))
	c.log.WithField("payment_id", rec.PaymentID).WithField("amount", rec.Amount).
		Info("payment registered")

	if !ident.HasWallet() || c.wallet == nil {
		c.hub.Publish(events.LevelInfo, "Payment created! Pi Wallet not available.")
		return c.snapshot(rec.PaymentID), nil
	}

	return c.driveApproval(ctx, rec.PaymentID, req)
}

// driveApproval runs the wallet approval flow for a registered payment.
func (c *Coordinator) driveApproval(ctx context.Context, paymentID string, req InitiateRequest) (payment.Payment, error) {
	c.transition(paymentID, payment.StatusApprovalPending)

	meta := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["paymentId"] = paymentID

	result, err := c.wallet.CreatePayment(ctx, wallet.PaymentRequest{
		Amount:   req.Amount,
		Memo:     req.Memo,
		Metadata: meta,
	})
	if err != nil {
		// The remote record deliberately survives so the user can retry.
		c.transition(paymentID, payment.StatusFailed)
		c.hub.Publish(events.LevelWarning, "Payment recorded! Pi Wallet integration failed.")
		c.log.WithError(err).WithField("payment_id", paymentID).Warn("wallet payment declined")
		return c.snapshot(paymentID), fmt.Errorf("%w: %v", ErrWalletDeclined, err)
	}

	c.mu.Lock()
	if rec, ok := c.records[paymentID]; ok {
		if err := rec.SetIdentifier(result.Identifier); err != nil {
			c.log.WithError(err).WithField("payment_id", paymentID).Warn("identifier already set")
		} else {
			c.byIdentifier[result.Identifier] = paymentID
		}
	}
	c.mu.Unlock()

	if err := c.remote.UpdatePayment(ctx, remote.UpdatePaymentRequest{
		PaymentID:  paymentID,
		Identifier: result.Identifier,
		Status:     payment.StatusApproved,
	}); err != nil {
		c.log.WithError(err).WithField("payment_id", paymentID).
			Warn("failed to report approval to remote store")
	}
	c.transition(paymentID, payment.StatusApproved)
	c.hub.Publish(events.LevelInfo, "Payment initiated! Please approve in your Pi Wallet.")

	c.startPoll(paymentID)
	return c.snapshot(paymentID), nil
}

// InitiateForProduct creates a payment for a specific product.
func (c *Coordinator) InitiateForProduct(ctx context.Context, p product.Product) (payment.Payment, error) {
	return c.Initiate(ctx, InitiateRequest{
		Amount: p.Price,
		Memo:   fmt.Sprintf("PI TRACE - Purchase: %s", p.Name),
		Metadata: map[string]string{
			"product":     "product_purchase",
			"productId":   p.ID,
			"productName": p.Name,
			"productHash": p.Hash,
		},
		ProductID: p.ID,
	})
}

// InitiatePremium creates the fixed premium-service payment.
func (c *Coordinator) InitiatePremium(ctx context.Context) (payment.Payment, error) {
	return c.Initiate(ctx, InitiateRequest{
		Amount: 3.14,
		Memo:   "PI TRACE - Premium Service",
		Metadata: map[string]string{
			"product":  "premium_tracking",
			"features": "advanced_tracking,priority_support",
		},
		ServiceType: "premium_tracking",
	})
}

// Get returns the local record for a payment id.
func (c *Coordinator) Get(paymentID string) (payment.Payment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[paymentID]
	if !ok {
		return payment.Payment{}, false
	}
	return rec.Clone(), true
}

// History fetches the current identity's payment history from the remote
// store.
func (c *Coordinator) History(ctx context.Context) ([]payment.Payment, error) {
	ident, ok := c.sessions.Current()
	if !ok {
		return nil, ErrNoSession
	}
	return c.remote.ListPayments(ctx, ident.UID)
}

// CancelPolls stops every in-flight poll loop. In-flight requests fail soft.
func (c *Coordinator) CancelPolls() {
	c.mu.Lock()
	for id, cancel := range c.polls {
		cancel()
		delete(c.polls, id)
	}
	c.mu.Unlock()
}

// Close cancels all polls and waits for their goroutines to finish.
func (c *Coordinator) Close() {
	c.CancelPolls()
	c.wg.Wait()
}

// --- internals ---

// snapshot returns a copy of the record; the zero Payment when unknown.
func (c *Coordinator) snapshot(paymentID string) payment.Payment {
	p, _ := c.Get(paymentID)
	return p
}

// transition applies a forward transition to the local record. Illegal
// transitions (including any change to a terminal record) are dropped with a
// log line rather than propagated.
func (c *Coordinator) transition(paymentID string, next payment.Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[paymentID]
	if !ok {
		return false
	}
	if err := rec.Transition(next); err != nil {
		c.log.WithField("payment_id", paymentID).
			WithField("from", rec.Status).
			WithField("to", next).
			Warn("dropped illegal payment transition")
		return false
	}
	metrics.PaymentTransition(string(next))
	return true
}

// startPoll launches the poll loop for a payment id. A second call for the
// same id while a poll is running is a no-op.
func (c *Coordinator) startPoll(paymentID string) {
	c.mu.Lock()
	if _, running := c.polls[paymentID]; running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.polls[paymentID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.pollLoop(ctx, paymentID)
}

func (c *Coordinator) clearPoll(paymentID string) {
	c.mu.Lock()
	if cancel, ok := c.polls[paymentID]; ok {
		cancel()
		delete(c.polls, paymentID)
	}
	c.mu.Unlock()
}

// pollLoop checks the remote status at a fixed interval up to the attempt
// ceiling. Transport errors count as attempts and fail soft; a torn-down
// session never panics an in-flight poll.
func (c *Coordinator) pollLoop(ctx context.Context, paymentID string) {
	defer c.wg.Done()
	defer c.clearPoll(paymentID)

	log := c.log.WithField("payment_id", paymentID)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Debug("payment poll cancelled")
			return
		case <-ticker.C:
		}

		metrics.PollAttempt()
		remoteRec, err := c.remote.GetPayment(ctx, paymentID)
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Debug("payment status check failed")
			continue
		}

		switch remoteRec.Status {
		case payment.StatusCompleted:
			c.transition(paymentID, payment.StatusCompleted)
			c.hub.Publish(events.LevelSuccess, "Payment completed successfully!")
			c.hub.Publish(events.LevelInfo, "Payment history updated")
			log.Info("payment completed")
			return
		case payment.StatusFailed:
			c.transition(paymentID, payment.StatusFailed)
			c.hub.Publish(events.LevelError, "Payment failed")
			return
		case payment.StatusCancelled:
			c.transition(paymentID, payment.StatusCancelled)
			c.hub.Publish(events.LevelError, "Payment cancelled")
			return
		}
	}

	metrics.PollTimeout()
	if c.cfg.Timeout == TimeoutMarkFailed {
		c.transition(paymentID, payment.StatusFailed)
		c.hub.Publish(events.LevelError, "Payment status check timed out")
		log.Warn("poll ceiling reached, payment marked failed")
		return
	}
	log.Warn("poll ceiling reached, payment left approved")
}

// handleIncomplete is the wallet SDK's incomplete-payment callback. It runs
// recovery in the background so the SDK's auth flow is never blocked.
func (c *Coordinator) handleIncomplete(identifier string) {
	c.log.WithField("identifier", identifier).Info("incomplete payment reported by wallet")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.RecoverIncomplete(ctx, identifier); err != nil {
			c.log.WithError(err).WithField("identifier", identifier).
				Warn("incomplete payment recovery failed")
		}
	}()
}

// RecoverIncomplete marks a wallet-reported incomplete payment completed on
// the remote store. With VerifyRecovered enabled the identifier must match a
// known local record first; otherwise the SDK's identifier is trusted as-is.
func (c *Coordinator) RecoverIncomplete(ctx context.Context, identifier string) error {
	if c.cfg.VerifyRecovered {
		c.mu.Lock()
		_, known := c.byIdentifier[identifier]
		c.mu.Unlock()
		if !known {
			c.hub.Publish(events.LevelWarning, "Ignored unrecognized incomplete payment")
			return fmt.Errorf("%w: %s", ErrUnverifiedRecovery, identifier)
		}
	}

	if err := c.remote.UpdatePayment(ctx, remote.UpdatePaymentRequest{
		Identifier: identifier,
		Status:     payment.StatusCompleted,
	}); err != nil {
		return fmt.Errorf("recover payment %s: %w", identifier, err)
	}

	c.mu.Lock()
	paymentID, known := c.byIdentifier[identifier]
	c.mu.Unlock()
	if known {
		c.transition(paymentID, payment.StatusCompleted)
	}

	c.hub.Publish(events.LevelSuccess, "Previous payment completed!")
	c.log.WithField("identifier", identifier).Info("incomplete payment recovered")
	return nil
}
