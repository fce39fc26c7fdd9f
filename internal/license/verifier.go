package license

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the client-side license state derived from the cached grant.
type State string

const (
	// StateUnregistered means no grant has ever been cached.
	StateUnregistered State = "unregistered"
	// StateActive means the grant is trusted and inside its validity window.
	StateActive State = "active"
	// StateGrace means the grant expired but the grace window is still open.
	// Access continues; callers are expected to surface a warning.
	StateGrace State = "grace"
	// StateBlocked means the grant is expired past grace, not active, or
	// failed a trust check.
	StateBlocked State = "blocked"
)

// CachedState is the client-side projection of the last accepted grant.
type CachedState struct {
	Token         string
	Grant         *Grant
	LastCheckedAt time.Time
}

// Evaluation is the outcome of verifying a grant.
type Evaluation struct {
	State         State
	Grant         *Grant
	Reason        string
	DaysRemaining int
}

// Verifier evaluates grants for one bound tenant. Evaluation is a pure
// computation over the grant and the clock; it performs no I/O.
type Verifier struct {
	keys     *KeySet
	tenantID uuid.UUID
	now      func() time.Time
}

// NewVerifier creates a verifier bound to the given tenant.
func NewVerifier(keys *KeySet, tenantID uuid.UUID) *Verifier {
	return &Verifier{
		keys:     keys,
		tenantID: tenantID,
		now:      time.Now,
	}
}

// Keys returns the verifier's known key set.
func (v *Verifier) Keys() *KeySet {
	return v.keys
}

// VerifyToken decodes, signature-checks, and evaluates a grant token.
// Trust failures (bad signature, unknown key, malformed payload, wrong
// tenant) return a blocked evaluation along with the sentinel error; they
// are not retryable.
func (v *Verifier) VerifyToken(token string) (*Evaluation, error) {
	grant, err := DecodeToken(token, v.keys)
	if err != nil {
		reason := "malformed grant"
		if errors.Is(err, ErrInvalidSignature) {
			reason = "invalid signature"
		}
		return &Evaluation{State: StateBlocked, Reason: reason}, err
	}
	eval := v.Evaluate(grant)
	if eval.State == StateBlocked && eval.Reason == "tenant mismatch" {
		return eval, ErrTenantMismatch
	}
	return eval, nil
}

// Evaluate runs the time and tenant checks over an already signature-verified
// grant. Trust precedes time: a tenant mismatch blocks even when the expiry
// check alone would pass.
func (v *Verifier) Evaluate(grant *Grant) *Evaluation {
	if grant == nil {
		return &Evaluation{State: StateUnregistered, Reason: "no grant cached"}
	}

	if grant.TenantID != v.tenantID {
		return &Evaluation{State: StateBlocked, Grant: grant, Reason: "tenant mismatch"}
	}

	if grant.Status != SubscriptionActive {
		return &Evaluation{
			State:  StateBlocked,
			Grant:  grant,
			Reason: fmt.Sprintf("subscription %s", grant.Status),
		}
	}

	now := v.now()

	if now.Before(grant.ExpiresAt) {
		return &Evaluation{
			State:         StateActive,
			Grant:         grant,
			DaysRemaining: daysUntil(now, grant.ExpiresAt),
		}
	}

	if graceEnd := grant.GraceEndsAt(); now.Before(graceEnd) {
		remaining := daysUntil(now, graceEnd)
		return &Evaluation{
			State:         StateGrace,
			Grant:         grant,
			Reason:        fmt.Sprintf("grant expired, %d days remaining in grace period", remaining),
			DaysRemaining: remaining,
		}
	}

	return &Evaluation{State: StateBlocked, Grant: grant, Reason: "grant expired past grace period"}
}

// EvaluateCached re-evaluates the last cached grant against the current
// clock. The signature is re-verified on every pass so a tampered cache can
// never upgrade state. Staleness of LastCheckedAt is deliberately not a
// blocking condition: only the grant's own expiry and grace window are.
func (v *Verifier) EvaluateCached(cached *CachedState) *Evaluation {
	if cached == nil || cached.Token == "" {
		return &Evaluation{State: StateUnregistered, Reason: "no grant cached"}
	}
	eval, _ := v.VerifyToken(cached.Token)
	return eval
}

func daysUntil(now, t time.Time) int {
	days := int(t.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
