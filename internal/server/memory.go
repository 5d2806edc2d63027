package server

import (
	"context"
	"sync"

	"github.com/pi-trace/registry/internal/domain/identity"
	"github.com/pi-trace/registry/internal/domain/payment"
	"github.com/pi-trace/registry/internal/domain/product"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]identity.Identity
	products map[string]product.Product
	// productOrder preserves insertion order for listings.
	productOrder []string
	payments     map[string]payment.Payment
	paymentOrder []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]identity.Identity),
		products: make(map[string]product.Product),
		payments: make(map[string]payment.Payment),
	}
}

func (s *MemoryStore) UpsertUser(_ context.Context, ident identity.Identity) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[ident.UID]
	if ok {
		if ident.Username != "" {
			existing.Username = ident.Username
		}
		if ident.WalletAddress != "" {
			existing.WalletAddress = ident.WalletAddress
		}
		existing.Kind = ident.Kind
		s.users[ident.UID] = existing
		return existing, nil
	}
	s.users[ident.UID] = ident
	return ident, nil
}

func (s *MemoryStore) ListProducts(_ context.Context, ownerID string) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0)
	// Most recent first.
	for i := len(s.productOrder) - 1; i >= 0; i-- {
		p, ok := s.products[s.productOrder[i]]
		if ok && p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertProduct(_ context.Context, p product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; exists {
		return ErrDuplicate
	}
	for _, existing := range s.products {
		if existing.Hash == p.Hash {
			return ErrDuplicate
		}
	}
	s.products[p.ID] = p
	s.productOrder = append(s.productOrder, p.ID)
	return nil
}

func (s *MemoryStore) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return ErrNotFound
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) InsertPayment(_ context.Context, p payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.PaymentID]; exists {
		return ErrDuplicate
	}
	s.payments[p.PaymentID] = p.Clone()
	s.paymentOrder = append(s.paymentOrder, p.PaymentID)
	return nil
}

func (s *MemoryStore) GetPayment(_ context.Context, paymentID string) (payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return payment.Payment{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) GetPaymentByIdentifier(_ context.Context, identifier string) (payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if identifier == "" {
		return payment.Payment{}, ErrNotFound
	}
	for _, p := range s.payments {
		if p.Identifier == identifier {
			return p.Clone(), nil
		}
	}
	return payment.Payment{}, ErrNotFound
}

func (s *MemoryStore) UpdatePayment(_ context.Context, p payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[p.PaymentID]; !ok {
		return ErrNotFound
	}
	s.payments[p.PaymentID] = p.Clone()
	return nil
}

func (s *MemoryStore) ListPayments(_ context.Context, ownerID string) ([]payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]payment.Payment, 0)
	for i := len(s.paymentOrder) - 1; i >= 0; i-- {
		p, ok := s.payments[s.paymentOrder[i]]
		if ok && p.OwnerID == ownerID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}
