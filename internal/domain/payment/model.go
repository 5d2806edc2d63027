// Package payment defines the payment record and its lifecycle state machine.
//
// Statuses move forward only:
//
//	created → approval_pending → approved → completed
//
// with failed and cancelled reachable from approval_pending or approved.
// Terminal statuses (completed, failed, cancelled) are immutable.
package payment

import (
	"errors"
	"time"
)

// Status is a payment lifecycle state.
type Status string

const (
	StatusCreated         Status = "created"
	StatusApprovalPending Status = "approval_pending"
	StatusApproved        Status = "approved"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether no further transition may occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. created → approved is allowed because the wallet's acceptance
// may be the first observation a party sees after registration.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusCreated:
		return next == StatusApprovalPending || next == StatusApproved
	case StatusApprovalPending:
		return next == StatusApproved || next == StatusFailed || next == StatusCancelled
	case StatusApproved:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	}
	return false
}

var (
	// ErrInvalidTransition rejects a backward or terminal-state change.
	ErrInvalidTransition = errors.New("invalid payment status transition")
	// ErrIdentifierSet rejects a second wallet identifier assignment.
	ErrIdentifierSet = errors.New("payment identifier already set")
)

// Payment is a payment record. PaymentID is assigned by the remote store;
// Identifier is assigned by the wallet and set at most once.
type Payment struct {
	PaymentID  string            `json:"paymentId"`
	Identifier string            `json:"identifier,omitempty"`
	Amount     float64           `json:"amount"`
	Memo       string            `json:"memo"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     Status            `json:"status"`
	ProductID  string            `json:"productId,omitempty"`
	OwnerID    string            `json:"owner,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Transition moves the payment to next, enforcing the forward-only rule.
func (p *Payment) Transition(next Status) error {
	if !p.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	p.Status = next
	return nil
}

// SetIdentifier records the wallet-assigned identifier. It may be called at
// most once.
func (p *Payment) SetIdentifier(id string) error {
	if p.Identifier != "" {
		return ErrIdentifierSet
	}
	p.Identifier = id
	return nil
}

// Clone returns a deep copy, so callers can hand records out without sharing
// the metadata map.
func (p Payment) Clone() Payment {
	out := p
	if p.Metadata != nil {
		out.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
