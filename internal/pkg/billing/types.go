package billing

import (
	"errors"
	"strings"

	"github.com/TobiasKell/NoteMorph/app/models"
)

// Sentinel errors returned across the billing service boundary. Callers
// branch on these with errors.Is; anything else is a transient
// infrastructure failure and should be retried by the caller.
var (
	// ErrInvalidSignature marks a webhook whose signature did not verify.
	// Permanent: the delivery is rejected and never retried.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")

	// ErrNoBillingAccount is returned by StartPortal for users without a
	// customer mapping. A logical conflict, not an infrastructure failure.
	ErrNoBillingAccount = errors.New("billing: no billing account")

	// ErrProviderFailure wraps failures of the external payment processor.
	// Retryable: GetOrCreateCustomer and session creation are idempotent.
	ErrProviderFailure = errors.New("billing: payment provider request failed")
)

// Config carries the externally configured billing values.
type Config struct {
	WebhookSecret   string
	PriceID         string
	FreeCreditGrant int64
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// SpendResult is the outcome of one atomic credit spend.
type SpendResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
}

// WebhookOutcome describes how an inbound webhook delivery was handled.
type WebhookOutcome struct {
	EventType string
	Duplicate bool
	Applied   bool
	Ignored   bool
	// Queued is set when the event's user could not be resolved and the
	// event was durably parked for manual reconciliation instead.
	Queued bool
}

// NormalizeSubscriptionStatus folds the processor's status vocabulary into
// the internal one. Active and trialing pass through; everything else
// (canceled, unpaid, incomplete_expired, paused, ...) collapses to canceled
// since entitlement semantics are binary.
func NormalizeSubscriptionStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case models.SubscriptionStatusActive:
		return models.SubscriptionStatusActive
	case models.SubscriptionStatusTrialing:
		return models.SubscriptionStatusTrialing
	default:
		return models.SubscriptionStatusCanceled
	}
}
