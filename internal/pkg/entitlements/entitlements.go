package entitlements

import (
	"context"

	"github.com/TobiasKell/NoteMorph/internal/pkg/billing"
)

// Decision is the result of one entitlement check.
type Decision struct {
	Allowed bool `json:"allowed"`
	// Unlimited is set when an active or trialing subscription authorized
	// the action; no credit was consumed.
	Unlimited        bool  `json:"unlimited"`
	RemainingCredits int64 `json:"remaining_credits"`
}

// Gate authorizes metered actions. Subscribers pass without touching the
// ledger; everyone else spends a credit atomically.
type Gate struct {
	billing *billing.Service
}

// NewGate creates an entitlement gate over the billing service.
func NewGate(svc *billing.Service) *Gate {
	return &Gate{billing: svc}
}

// Authorize decides whether the user may perform one metered action.
//
// The subscription check runs strictly before any ledger mutation: a paying
// user is never metered, and in the window between payment and webhook
// arrival the user burns credits instead of being blocked outright, which
// self-corrects once the activation lands.
func (g *Gate) Authorize(ctx context.Context, userID uint) (Decision, error) {
	state, err := g.billing.SubscriptionState(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if state.Unlimited() {
		return Decision{Allowed: true, Unlimited: true}, nil
	}

	res, err := g.billing.SpendCredit(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: res.Allowed, RemainingCredits: res.Remaining}, nil
}

// Peek reports the current entitlement without consuming anything.
func (g *Gate) Peek(ctx context.Context, userID uint) (Decision, error) {
	state, err := g.billing.SubscriptionState(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if state.Unlimited() {
		return Decision{Allowed: true, Unlimited: true}, nil
	}

	remaining, err := g.billing.RemainingCredits(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: remaining > 0, RemainingCredits: remaining}, nil
}
