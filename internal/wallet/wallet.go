// Package wallet defines the external wallet SDK surface the registry
// consumes. The actual authentication and payment protocol is entirely the
// SDK's concern; this package only names the capability.
package wallet

import (
	"context"
	"errors"
)

// Scopes requested at authentication time.
const (
	ScopeUsername      = "username"
	ScopePayments      = "payments"
	ScopeWalletAddress = "wallet_address"
)

// DefaultScopes is the fixed scope set used for every login.
func DefaultScopes() []string {
	return []string{ScopeUsername, ScopePayments, ScopeWalletAddress}
}

var (
	// ErrUnavailable means the wallet capability is absent or the user
	// declined authentication. Callers fall back to a guest session.
	ErrUnavailable = errors.New("wallet capability unavailable")
	// ErrDeclined means the wallet rejected or aborted a payment.
	ErrDeclined = errors.New("wallet payment declined")
)

// IncompleteFunc is invoked by the SDK when it detects a payment from a prior
// session that never finished.
type IncompleteFunc func(identifier string)

// AuthResult is the SDK's authentication response.
type AuthResult struct {
	UID           string
	Username      string
	WalletAddress string
	AccessToken   string
}

// PaymentRequest asks the wallet to create a payment. The call suspends until
// the user approves or rejects it in the wallet UI.
type PaymentRequest struct {
	Amount   float64
	Memo     string
	Metadata map[string]string
}

// PaymentResult carries the wallet-assigned payment identifier.
type PaymentResult struct {
	Identifier string
}

// Wallet is the external capability providing authentication and payment
// creation.
type Wallet interface {
	// Authenticate requests the given scopes. onIncomplete is registered for
	// the lifetime of the session.
	Authenticate(ctx context.Context, scopes []string, onIncomplete IncompleteFunc) (AuthResult, error)
	// CreatePayment suspends until the user approves or rejects the payment.
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error)
}
