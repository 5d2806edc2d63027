// Package identity defines the authenticated or guest user context owned by
// the session manager.
package identity

import (
	"fmt"
	"time"
)

// Kind discriminates wallet-authenticated identities from guest ones. The
// wire values match the remote store's loginType field.
type Kind string

const (
	KindWallet Kind = "pi"
	KindGuest  Kind = "guest"
)

// Identity is the current user context. It is immutable for the duration of a
// session: components other than the session manager hold read-only copies.
type Identity struct {
	UID           string `json:"uid"`
	Username      string `json:"username"`
	Kind          Kind   `json:"loginType"`
	Token         string `json:"token,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// Guest synthesizes a guest identity with a locally generated unique id.
func Guest(now time.Time) Identity {
	return Identity{
		UID:      fmt.Sprintf("guest_%d", now.UnixMilli()),
		Username: "Guest User",
		Kind:     KindGuest,
	}
}

// HasWallet reports whether payments can be driven to completion for this
// identity.
func (i Identity) HasWallet() bool {
	return i.Kind == KindWallet
}

// IsZero reports whether no identity is set.
func (i Identity) IsZero() bool {
	return i.UID == ""
}
