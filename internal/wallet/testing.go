package wallet

import (
	"context"
	"sync"
)

// Mock provides a scriptable Wallet for tests. It records calls and exposes
// the registered incomplete-payment callback so tests can fire it.
type Mock struct {
	mu sync.Mutex

	AuthResult AuthResult
	AuthErr    error

	PayResult PaymentResult
	PayErr    error

	authCalls    int
	payCalls     []PaymentRequest
	onIncomplete IncompleteFunc
}

// NewMock returns a mock that authenticates as a fixed wallet user and
// accepts payments with identifier "pi_mock_1".
func NewMock() *Mock {
	return &Mock{
		AuthResult: AuthResult{
			UID:           "wallet-uid-1",
			Username:      "pi_pioneer",
			WalletAddress: "GADDR000TEST",
			AccessToken:   "sdk-access-token",
		},
		PayResult: PaymentResult{Identifier: "pi_mock_1"},
	}
}

func (m *Mock) Authenticate(_ context.Context, _ []string, onIncomplete IncompleteFunc) (AuthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.authCalls++
	m.onIncomplete = onIncomplete
	if m.AuthErr != nil {
		return AuthResult{}, m.AuthErr
	}
	return m.AuthResult, nil
}

func (m *Mock) CreatePayment(_ context.Context, req PaymentRequest) (PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payCalls = append(m.payCalls, req)
	if m.PayErr != nil {
		return PaymentResult{}, m.PayErr
	}
	return m.PayResult, nil
}

// AuthCalls reports how many times Authenticate ran.
func (m *Mock) AuthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authCalls
}

// PaymentCalls returns the recorded payment requests.
func (m *Mock) PaymentCalls() []PaymentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PaymentRequest, len(m.payCalls))
	copy(out, m.payCalls)
	return out
}

// FireIncomplete invokes the callback registered at authentication time.
func (m *Mock) FireIncomplete(identifier string) {
	m.mu.Lock()
	fn := m.onIncomplete
	m.mu.Unlock()
	if fn != nil {
		fn(identifier)
	}
}
