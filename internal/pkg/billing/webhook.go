package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/TobiasKell/NoteMorph/app/models"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
)

// checkoutSessionPayload is the minimal shape of a checkout.session.completed
// event. The session carries the user_id embedded at checkout creation.
type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// subscriptionPayload is the minimal shape of customer.subscription.* events.
type subscriptionPayload struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Items    struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (p subscriptionPayload) priceID() string {
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].Price.ID
	}
	return ""
}

// ProcessWebhook runs one inbound delivery through the ingestion pipeline:
// verify, deduplicate, interpret, apply.
//
// The signature is checked against the raw bytes before anything is parsed;
// a failure rejects the delivery without touching business state. The event
// id is durably recorded before any mutation, and the mutation itself is
// timestamp-fenced, so a crash between the two leaves only replay-safe
// reprocessing. A redelivery of a cleanly processed event acknowledges
// without reapplying; a redelivery of a failed one is processed again.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader string) (WebhookOutcome, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookOutcome{}, ErrInvalidSignature
	}

	outcome := WebhookOutcome{EventType: string(event.Type)}

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
	})
	if err != nil {
		return outcome, err
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		// Clean replay: acknowledge without reapplying effects.
		outcome.Duplicate = true
		return outcome, nil
	}

	applied, ignored, applyErr := s.applyEvent(ctx, string(event.Type), event.Data.Raw, event.Created)
	if applyErr != nil {
		var unresolved *unresolvedUserError
		if errors.As(applyErr, &unresolved) {
			// Park the event durably, then acknowledge to stop pointless
			// redelivery. Manual reconciliation picks it up from the queue.
			// The item is keyed by provider + event id, so a redelivered
			// event lands on the existing row instead of queueing a second
			// one; reprocessing still runs, which lets the event apply once
			// the mapping shows up.
			if err := s.repo.EnqueueReconciliationItem(&models.BillingReconciliationItem{
				ItemKey:            models.BillingProviderStripe + ":" + event.ID,
				Provider:           models.BillingProviderStripe,
				ProviderEventID:    event.ID,
				EventType:          string(event.Type),
				ExternalCustomerID: unresolved.customerID,
				Reason:             unresolved.Error(),
			}); err != nil {
				return outcome, err
			}
			if err := s.repo.MarkWebhookProcessed(stored.ID, applyErr.Error()); err != nil {
				return outcome, err
			}
			outcome.Queued = true
			return outcome, nil
		}

		_ = s.repo.MarkWebhookProcessed(stored.ID, applyErr.Error())
		return outcome, applyErr
	}

	if err := s.repo.MarkWebhookProcessed(stored.ID, ""); err != nil {
		return outcome, err
	}
	outcome.Applied = applied
	outcome.Ignored = ignored
	return outcome, nil
}

// unresolvedUserError marks an event whose internal user cannot be
// determined from metadata or the customer mapping.
type unresolvedUserError struct {
	customerID string
	detail     string
}

func (e *unresolvedUserError) Error() string {
	return "billing: cannot resolve internal user: " + e.detail
}

func (s *Service) applyEvent(ctx context.Context, eventType string, raw json.RawMessage, eventTimestamp int64) (applied bool, ignored bool, err error) {
	switch eventType {
	case "checkout.session.completed":
		var session checkoutSessionPayload
		if err := json.Unmarshal(raw, &session); err != nil {
			return false, false, fmt.Errorf("decode checkout.session: %w", err)
		}
		if session.Mode != "" && session.Mode != "subscription" {
			return false, true, nil
		}
		return s.applyActivation(ctx, session, eventTimestamp)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub subscriptionPayload
		if err := json.Unmarshal(raw, &sub); err != nil {
			return false, false, fmt.Errorf("decode subscription: %w", err)
		}
		return s.applyTransition(ctx, sub, sub.Status, eventTimestamp)

	case "customer.subscription.deleted":
		var sub subscriptionPayload
		if err := json.Unmarshal(raw, &sub); err != nil {
			return false, false, fmt.Errorf("decode subscription: %w", err)
		}
		return s.applyTransition(ctx, sub, models.SubscriptionStatusCanceled, eventTimestamp)

	default:
		return false, true, nil
	}
}

// applyActivation handles checkout completion. The user is resolved through
// the metadata embedded when the checkout session was created, falling back
// to the reverse customer mapping. As a side effect the mapping is
// established for customers first seen from the processor side.
func (s *Service) applyActivation(ctx context.Context, session checkoutSessionPayload, eventTimestamp int64) (bool, bool, error) {
	userID := userIDFromMetadata(session.Metadata)
	if userID == 0 {
		userID = parseUserID(session.ClientReferenceID)
	}
	if userID == 0 && session.Customer != "" {
		if resolved, err := s.ResolveUserByCustomer(session.Customer); err == nil {
			userID = resolved
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, false, err
		}
	}
	if userID == 0 {
		return false, false, &unresolvedUserError{
			customerID: session.Customer,
			detail:     "checkout session " + session.ID + " carries no user correlation",
		}
	}

	if session.Customer != "" {
		if _, _, err := s.repo.CreateCustomerMappingIfAbsent(&models.CustomerMapping{
			UserID:             userID,
			Provider:           models.BillingProviderStripe,
			ExternalCustomerID: session.Customer,
		}); err != nil {
			return false, false, err
		}
	}

	// Checkout completion is a coarse signal: it proves a subscription was
	// started but not its exact status. Record it as active without tie
	// override, so the subscription lifecycle event the processor emits at
	// the same instant can still land its authoritative status (trialing,
	// past_due) on top.
	applied, err := s.ApplySubscription(ctx, userID, models.SubscriptionStatusActive, session.Customer, s.cfg.PriceID, eventTimestamp, false)
	return applied, false, err
}

func (s *Service) applyTransition(ctx context.Context, sub subscriptionPayload, status string, eventTimestamp int64) (bool, bool, error) {
	userID := userIDFromMetadata(sub.Metadata)
	if userID == 0 && sub.Customer != "" {
		if resolved, err := s.ResolveUserByCustomer(sub.Customer); err == nil {
			userID = resolved
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, false, err
		}
	}
	if userID == 0 {
		return false, false, &unresolvedUserError{
			customerID: sub.Customer,
			detail:     "subscription " + sub.ID + " has no mapped customer",
		}
	}

	applied, err := s.ApplySubscription(ctx, userID, status, sub.Customer, sub.priceID(), eventTimestamp, true)
	if err != nil {
		return false, false, err
	}

	// Dropping back to the free tier restores the onboarding grant so the
	// user is not left stranded at zero from before they subscribed.
	if applied && NormalizeSubscriptionStatus(status) == models.SubscriptionStatusCanceled {
		if err := s.ResetCredits(ctx, userID, s.cfg.FreeCreditGrant); err != nil {
			return applied, false, err
		}
	}
	return applied, false, nil
}

// PurgeProcessedEvents garbage-collects processed event records older than
// the retention window. Retention must exceed the processor's maximum
// redelivery window (>= 30 days recommended).
func (s *Service) PurgeProcessedEvents(ctx context.Context, retention time.Duration) (int64, error) {
	_ = ctx
	return s.repo.PurgeProcessedEventsBefore(time.Now().Add(-retention))
}

func userIDFromMetadata(metadata map[string]string) uint {
	if metadata == nil {
		return 0
	}
	return parseUserID(metadata["user_id"])
}

func parseUserID(raw string) uint {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}
