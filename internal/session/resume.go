package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pi-trace/registry/internal/domain/identity"
)

// ErrSessionExpired rejects a cached session whose token has expired.
var ErrSessionExpired = errors.New("cached session token expired")

// ResumePolicy decides whether a cached identity may be restored.
type ResumePolicy func(identity.Identity) error

// TrustCached accepts any cached identity without inspection; the session
// resumes straight from local storage.
func TrustCached() ResumePolicy {
	return func(identity.Identity) error { return nil }
}

// VerifyTokenExpiry rejects identities whose session token carries an expired
// exp claim. The token is not signature-verified here; only the server can do
// that, and a degraded-mode identity may carry no token at all.
func VerifyTokenExpiry(now func() time.Time) ResumePolicy {
	if now == nil {
		now = time.Now
	}
	return func(ident identity.Identity) error {
		if ident.Token == "" {
			return nil
		}
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(ident.Token, claims); err != nil {
			// Opaque tokens pass through; only well-formed JWTs are checked.
			return nil
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			return nil
		}
		if now().After(exp.Time) {
			return fmt.Errorf("%w: expired at %s", ErrSessionExpired, exp.Time.Format(time.RFC3339))
		}
		return nil
	}
}
