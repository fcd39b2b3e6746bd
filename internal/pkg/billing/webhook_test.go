package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/TobiasKell/NoteMorph/app/models"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_123"

func testConfig() Config {
	return Config{
		WebhookSecret:   testWebhookSecret,
		PriceID:         "price_default",
		FreeCreditGrant: 10,
		SuccessURL:      "https://app.example/billing/success",
		CancelURL:       "https://app.example/billing/cancel",
		PortalReturnURL: "https://app.example/account",
	}
}

func signPayload(t *testing.T, secret string, payload []byte) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}

func eventPayload(t *testing.T, id, eventType string, created int64, object map[string]interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"type":    eventType,
		"created": created,
		"data": map[string]interface{}{
			"object": object,
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func checkoutCompletedPayload(t *testing.T, eventID string, created int64, userID string, customer string) []byte {
	return eventPayload(t, eventID, "checkout.session.completed", created, map[string]interface{}{
		"id":                  "cs_test_1",
		"mode":                "subscription",
		"customer":            customer,
		"client_reference_id": userID,
		"metadata":            map[string]string{"user_id": userID},
	})
}

func subscriptionEventPayload(t *testing.T, eventID, eventType string, created int64, customer, status string, metadata map[string]string) []byte {
	object := map[string]interface{}{
		"id":       "sub_test_1",
		"customer": customer,
		"status":   status,
		"items": map[string]interface{}{
			"data": []map[string]interface{}{
				{"price": map[string]interface{}{"id": "price_pro"}},
			},
		},
	}
	if metadata != nil {
		object["metadata"] = metadata
	}
	return eventPayload(t, eventID, eventType, created, object)
}

func TestProcessWebhookRejectsBadSignature(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	payload := checkoutCompletedPayload(t, "evt_1", 100, "7", "cus_a")
	sig := signPayload(t, "whsec_wrong", payload)

	_, err := svc.ProcessWebhook(context.Background(), payload, sig)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if len(repo.events) != 0 {
		t.Fatalf("rejected delivery must not be recorded, got %d events", len(repo.events))
	}
}

func TestProcessWebhookActivatesSubscription(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	payload := checkoutCompletedPayload(t, "evt_1", 100, "7", "cus_a")
	outcome, err := svc.ProcessWebhook(context.Background(), payload, signPayload(t, testWebhookSecret, payload))
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if !outcome.Applied || outcome.Duplicate || outcome.Queued {
		t.Fatalf("outcome = %+v, want applied", outcome)
	}

	state, err := repo.GetSubscriptionState(7)
	if err != nil {
		t.Fatalf("GetSubscriptionState: %v", err)
	}
	if state.Status != models.SubscriptionStatusActive {
		t.Fatalf("status = %q, want active", state.Status)
	}
	if state.LastEventTimestamp != 100 {
		t.Fatalf("last_event_timestamp = %d, want 100", state.LastEventTimestamp)
	}

	// The mapping is established from the processor side.
	m, err := repo.GetCustomerMapping(7)
	if err != nil {
		t.Fatalf("GetCustomerMapping: %v", err)
	}
	if m.ExternalCustomerID != "cus_a" {
		t.Fatalf("external customer = %q, want cus_a", m.ExternalCustomerID)
	}
}

func TestProcessWebhookDuplicateDeliveryIsAcknowledgedOnce(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	payload := checkoutCompletedPayload(t, "evt_1", 100, "7", "cus_a")
	sig := signPayload(t, testWebhookSecret, payload)

	if _, err := svc.ProcessWebhook(context.Background(), payload, sig); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	outcome, err := svc.ProcessWebhook(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !outcome.Duplicate {
		t.Fatalf("outcome = %+v, want duplicate", outcome)
	}
	if outcome.Applied {
		t.Fatal("duplicate delivery must not reapply effects")
	}
}

func TestProcessWebhookReprocessesFailedEvent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	payload := checkoutCompletedPayload(t, "evt_1", 100, "7", "cus_a")
	sig := signPayload(t, testWebhookSecret, payload)

	repo.setApplyError(fmt.Errorf("db briefly down"))
	if _, err := svc.ProcessWebhook(context.Background(), payload, sig); err == nil {
		t.Fatal("expected first delivery to fail")
	}

	// Redelivery of an event that failed must run the pipeline again, not
	// short-circuit as a duplicate.
	repo.setApplyError(nil)
	outcome, err := svc.ProcessWebhook(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if outcome.Duplicate {
		t.Fatal("failed event must not be treated as a clean duplicate")
	}
	if !outcome.Applied {
		t.Fatalf("outcome = %+v, want applied", outcome)
	}

	state, err := repo.GetSubscriptionState(7)
	if err != nil {
		t.Fatalf("GetSubscriptionState: %v", err)
	}
	if state.Status != models.SubscriptionStatusActive {
		t.Fatalf("status = %q, want active", state.Status)
	}
}

func TestProcessWebhookDiscardsStaleEvents(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())
	ctx := context.Background()

	// Establish the mapping and an active subscription at t=200.
	activate := checkoutCompletedPayload(t, "evt_activate", 200, "7", "cus_a")
	if _, err := svc.ProcessWebhook(ctx, activate, signPayload(t, testWebhookSecret, activate)); err != nil {
		t.Fatalf("activation: %v", err)
	}

	// A delayed cancellation from t=100 arrives afterwards. Later state wins.
	stale := subscriptionEventPayload(t, "evt_stale", "customer.subscription.deleted", 100, "cus_a", "canceled", nil)
	outcome, err := svc.ProcessWebhook(ctx, stale, signPayload(t, testWebhookSecret, stale))
	if err != nil {
		t.Fatalf("stale delivery: %v", err)
	}
	if outcome.Applied {
		t.Fatal("stale event must not be applied")
	}

	state, err := repo.GetSubscriptionState(7)
	if err != nil {
		t.Fatalf("GetSubscriptionState: %v", err)
	}
	if state.Status != models.SubscriptionStatusActive {
		t.Fatalf("status = %q, want active after stale cancel", state.Status)
	}

	// The real cancellation from t=300 lands and restores the free grant.
	cancel := subscriptionEventPayload(t, "evt_cancel", "customer.subscription.deleted", 300, "cus_a", "canceled", nil)
	outcome, err = svc.ProcessWebhook(ctx, cancel, signPayload(t, testWebhookSecret, cancel))
	if err != nil {
		t.Fatalf("cancel delivery: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("outcome = %+v, want applied", outcome)
	}

	state, err = repo.GetSubscriptionState(7)
	if err != nil {
		t.Fatalf("GetSubscriptionState: %v", err)
	}
	if state.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("status = %q, want canceled", state.Status)
	}
	b, err := repo.GetCreditBalance(7)
	if err != nil {
		t.Fatalf("GetCreditBalance: %v", err)
	}
	if b.CreditsRemaining != 10 {
		t.Fatalf("credits = %d, want restored grant 10", b.CreditsRemaining)
	}
}

func TestProcessWebhookQueuesUnresolvableUser(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	// No metadata, no mapping for this customer.
	payload := subscriptionEventPayload(t, "evt_1", "customer.subscription.updated", 100, "cus_unknown", "active", nil)
	outcome, err := svc.ProcessWebhook(context.Background(), payload, signPayload(t, testWebhookSecret, payload))
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if !outcome.Queued {
		t.Fatalf("outcome = %+v, want queued", outcome)
	}

	items := repo.queuedItems()
	if len(items) != 1 {
		t.Fatalf("queued items = %d, want 1", len(items))
	}
	if items[0].ExternalCustomerID != "cus_unknown" {
		t.Fatalf("queued customer = %q, want cus_unknown", items[0].ExternalCustomerID)
	}
	if items[0].ProviderEventID != "evt_1" {
		t.Fatalf("queued event = %q, want evt_1", items[0].ProviderEventID)
	}
}

func TestProcessWebhookQueuedEventRedeliveryKeepsOneItem(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())
	ctx := context.Background()

	// The processor keeps redelivering until we stop acknowledging with an
	// error, so the same unresolvable event arrives several times. Each
	// delivery must land on the same reconciliation row.
	payload := subscriptionEventPayload(t, "evt_dup", "customer.subscription.updated", 100, "cus_unknown", "active", nil)
	sig := signPayload(t, testWebhookSecret, payload)

	for i := 0; i < 3; i++ {
		outcome, err := svc.ProcessWebhook(ctx, payload, sig)
		if err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
		if !outcome.Queued {
			t.Fatalf("delivery %d outcome = %+v, want queued", i+1, outcome)
		}
	}

	items := repo.queuedItems()
	if len(items) != 1 {
		t.Fatalf("queued items = %d, want 1", len(items))
	}
	if items[0].ItemKey != "stripe:evt_dup" {
		t.Fatalf("item key = %q, want stripe:evt_dup", items[0].ItemKey)
	}
	if len(repo.subs) != 0 {
		t.Fatalf("subscription states = %d, want none for an unresolved user", len(repo.subs))
	}
}

func TestProcessWebhookTrialCheckoutKeepsTrialingStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())
	ctx := context.Background()

	// Checkout completion and the subscription lifecycle event for a trial
	// signup often share the same second. The lifecycle event carries the
	// real status and must win the tie.
	checkout := checkoutCompletedPayload(t, "evt_checkout", 100, "7", "cus_a")
	if _, err := svc.ProcessWebhook(ctx, checkout, signPayload(t, testWebhookSecret, checkout)); err != nil {
		t.Fatalf("checkout delivery: %v", err)
	}

	created := subscriptionEventPayload(t, "evt_sub", "customer.subscription.created", 100, "cus_a", "trialing", nil)
	outcome, err := svc.ProcessWebhook(ctx, created, signPayload(t, testWebhookSecret, created))
	if err != nil {
		t.Fatalf("subscription delivery: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("outcome = %+v, want applied", outcome)
	}

	state, err := repo.GetSubscriptionState(7)
	if err != nil {
		t.Fatalf("GetSubscriptionState: %v", err)
	}
	if state.Status != models.SubscriptionStatusTrialing {
		t.Fatalf("status = %q, want trialing", state.Status)
	}
	if state.CurrentPriceID != "price_pro" {
		t.Fatalf("price = %q, want price_pro", state.CurrentPriceID)
	}

	// The coarse checkout signal must not claw the state back to active at
	// the same timestamp.
	second := checkoutCompletedPayload(t, "evt_checkout_2", 100, "7", "cus_a")
	outcome, err = svc.ProcessWebhook(ctx, second, signPayload(t, testWebhookSecret, second))
	if err != nil {
		t.Fatalf("second checkout delivery: %v", err)
	}
	if outcome.Applied {
		t.Fatal("checkout event must not override subscription state at an equal timestamp")
	}
	state, err = repo.GetSubscriptionState(7)
	if err != nil {
		t.Fatalf("GetSubscriptionState: %v", err)
	}
	if state.Status != models.SubscriptionStatusTrialing {
		t.Fatalf("status = %q, want trialing after second checkout", state.Status)
	}
}

func TestProcessWebhookResolvesUserFromSubscriptionMetadata(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	// No mapping exists, but the subscription carries the user_id tagged at
	// checkout creation.
	payload := subscriptionEventPayload(t, "evt_1", "customer.subscription.created", 100, "cus_b", "trialing", map[string]string{"user_id": "9"})
	outcome, err := svc.ProcessWebhook(context.Background(), payload, signPayload(t, testWebhookSecret, payload))
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("outcome = %+v, want applied", outcome)
	}

	state, err := repo.GetSubscriptionState(9)
	if err != nil {
		t.Fatalf("GetSubscriptionState: %v", err)
	}
	if state.Status != models.SubscriptionStatusTrialing {
		t.Fatalf("status = %q, want trialing", state.Status)
	}
	if state.CurrentPriceID != "price_pro" {
		t.Fatalf("price = %q, want price_pro", state.CurrentPriceID)
	}
}

func TestProcessWebhookIgnoresUnhandledEventTypes(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	payload := eventPayload(t, "evt_1", "invoice.payment_succeeded", 100, map[string]interface{}{"id": "in_1"})
	outcome, err := svc.ProcessWebhook(context.Background(), payload, signPayload(t, testWebhookSecret, payload))
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if !outcome.Ignored {
		t.Fatalf("outcome = %+v, want ignored", outcome)
	}
	// Ignored events are still recorded for dedup and audit.
	if len(repo.events) != 1 {
		t.Fatalf("events = %d, want 1", len(repo.events))
	}
}

func TestPurgeProcessedEventsKeepsUnprocessed(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	old := time.Now().Add(-60 * 24 * time.Hour)
	processed := old
	repo.events["stripe/evt_old"] = &models.BillingWebhookEvent{
		ID: 1, Provider: "stripe", ProviderEventID: "evt_old",
		ProcessedAt: &processed, CreatedAt: old,
	}
	repo.events["stripe/evt_pending"] = &models.BillingWebhookEvent{
		ID: 2, Provider: "stripe", ProviderEventID: "evt_pending",
		CreatedAt: old,
	}

	purged, err := svc.PurgeProcessedEvents(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeProcessedEvents: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if _, ok := repo.events["stripe/evt_pending"]; !ok {
		t.Fatal("unprocessed event must survive the purge")
	}
}

func TestPurgeProcessedEventsKeepsFailedEvents(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	old := time.Now().Add(-60 * 24 * time.Hour)
	processed := old
	repo.events["stripe/evt_clean"] = &models.BillingWebhookEvent{
		ID: 1, Provider: "stripe", ProviderEventID: "evt_clean",
		ProcessedAt: &processed, CreatedAt: old,
	}
	repo.events["stripe/evt_failed"] = &models.BillingWebhookEvent{
		ID: 2, Provider: "stripe", ProviderEventID: "evt_failed",
		ProcessedAt: &processed, ProcessingError: "billing: cannot resolve internal user: subscription sub_x has no mapped customer",
		CreatedAt: old,
	}

	purged, err := svc.PurgeProcessedEvents(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeProcessedEvents: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	// Events that recorded an error stay so a redelivery can reprocess them.
	if _, ok := repo.events["stripe/evt_failed"]; !ok {
		t.Fatal("failed event must survive the purge")
	}
	if _, ok := repo.events["stripe/evt_clean"]; ok {
		t.Fatal("cleanly processed event past retention must be purged")
	}
}
