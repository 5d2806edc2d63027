package wallet

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pi-trace/registry/pkg/logger"
)

// Sandbox simulates the wallet SDK's sandbox mode: authentication always
// succeeds with a synthetic account and payments auto-approve after a short
// delay. It exists so the gateway can run end to end without the real SDK.
type Sandbox struct {
	log      *logger.Logger
	approval time.Duration
	seq      atomic.Int64
}

// NewSandbox creates a sandbox wallet. approval is how long CreatePayment
// pretends to wait for the user; zero means 100ms.
func NewSandbox(log *logger.Logger, approval time.Duration) *Sandbox {
	if approval <= 0 {
		approval = 100 * time.Millisecond
	}
	return &Sandbox{log: log.Named("wallet-sandbox"), approval: approval}
}

// Authenticate returns a synthetic wallet account.
func (s *Sandbox) Authenticate(_ context.Context, scopes []string, _ IncompleteFunc) (AuthResult, error) {
	s.log.WithField("scopes", scopes).Info("sandbox authentication")
	uid := "sandbox_" + uuid.NewString()[:8]
	return AuthResult{
		UID:           uid,
		Username:      "Sandbox User",
		WalletAddress: "SANDBOX" + uuid.NewString()[:12],
		AccessToken:   "sandbox-token-" + uid,
	}, nil
}

// CreatePayment waits out the approval delay and accepts the payment.
func (s *Sandbox) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	select {
	case <-ctx.Done():
		return PaymentResult{}, fmt.Errorf("%w: %v", ErrDeclined, ctx.Err())
	case <-time.After(s.approval):
	}
	identifier := fmt.Sprintf("sandbox_pay_%d", s.seq.Add(1))
	s.log.WithField("identifier", identifier).
		WithField("amount", req.Amount).
		Info("sandbox payment approved")
	return PaymentResult{Identifier: identifier}, nil
}
