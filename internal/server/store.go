// Package server implements the remote store: the backend API of record for
// users, products and payments that the gateway client talks to.
package server

import (
	"context"
	"errors"

	"github.com/pi-trace/registry/internal/domain/identity"
	"github.com/pi-trace/registry/internal/domain/payment"
	"github.com/pi-trace/registry/internal/domain/product"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate means a unique constraint (product hash, payment
	// identifier) was violated.
	ErrDuplicate = errors.New("record already exists")
)

// Store persists users, products and payments.
type Store interface {
	UpsertUser(ctx context.Context, ident identity.Identity) (identity.Identity, error)

	ListProducts(ctx context.Context, ownerID string) ([]product.Product, error)
	InsertProduct(ctx context.Context, p product.Product) error
	DeleteProduct(ctx context.Context, id string) error

	InsertPayment(ctx context.Context, p payment.Payment) error
	GetPayment(ctx context.Context, paymentID string) (payment.Payment, error)
	GetPaymentByIdentifier(ctx context.Context, identifier string) (payment.Payment, error)
	UpdatePayment(ctx context.Context, p payment.Payment) error
	ListPayments(ctx context.Context, ownerID string) ([]payment.Payment, error)
}
