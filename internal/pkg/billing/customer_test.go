package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/TobiasKell/NoteMorph/app/models"
	stripelib "github.com/stripe/stripe-go/v82"
)

func TestGetOrCreateCustomerCreatesExactlyOne(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	var creates int64
	svc.createCustomer = func(params *stripelib.CustomerParams) (*stripelib.Customer, error) {
		n := atomic.AddInt64(&creates, 1)
		return &stripelib.Customer{ID: fmt.Sprintf("cus_%d", n)}, nil
	}

	const workers = 8
	results := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GetOrCreateCustomer(context.Background(), 7)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("worker %d got %q, worker 0 got %q", i, results[i], results[0])
		}
	}
	if got := atomic.LoadInt64(&creates); got != 1 {
		t.Fatalf("external customer creates = %d, want 1", got)
	}
}

func TestGetOrCreateCustomerReturnsExistingMapping(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())
	repo.mappings[7] = &models.CustomerMapping{
		UserID:             7,
		Provider:           models.BillingProviderStripe,
		ExternalCustomerID: "cus_existing",
	}

	svc.createCustomer = func(params *stripelib.CustomerParams) (*stripelib.Customer, error) {
		t.Fatal("must not create a second external customer")
		return nil, nil
	}

	id, err := svc.GetOrCreateCustomer(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetOrCreateCustomer: %v", err)
	}
	if id != "cus_existing" {
		t.Fatalf("customer = %q, want cus_existing", id)
	}
}

func TestGetOrCreateCustomerWrapsProviderFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())
	svc.createCustomer = func(params *stripelib.CustomerParams) (*stripelib.Customer, error) {
		return nil, errors.New("stripe: connection reset")
	}

	_, err := svc.GetOrCreateCustomer(context.Background(), 7)
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
	// Nothing persisted, a retry starts clean.
	if _, err := repo.GetCustomerMapping(7); err == nil {
		t.Fatal("failed creation must not leave a mapping behind")
	}
}

func TestStartCheckoutTagsUser(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())

	var captured *stripelib.CheckoutSessionParams
	svc.createCheckoutSession = func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		captured = params
		return &stripelib.CheckoutSession{URL: "https://checkout.example/s1"}, nil
	}

	url, err := svc.StartCheckout(context.Background(), 7)
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if url != "https://checkout.example/s1" {
		t.Fatalf("url = %q", url)
	}

	if captured == nil {
		t.Fatal("checkout session was not created")
	}
	if got := stripelib.StringValue(captured.Mode); got != string(stripelib.CheckoutSessionModeSubscription) {
		t.Fatalf("mode = %q, want subscription", got)
	}
	if got := stripelib.StringValue(captured.ClientReferenceID); got != "7" {
		t.Fatalf("client_reference_id = %q, want 7", got)
	}
	if captured.SubscriptionData == nil || captured.SubscriptionData.Metadata["user_id"] != "7" {
		t.Fatal("subscription metadata must carry user_id")
	}
	if len(captured.LineItems) != 1 || stripelib.StringValue(captured.LineItems[0].Price) != "price_default" {
		t.Fatal("line items must reference the configured price")
	}
}

func TestStartPortalWithoutBillingAccount(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())
	svc.createPortalSession = func(params *stripelib.BillingPortalSessionParams) (*stripelib.BillingPortalSession, error) {
		t.Fatal("no portal session may be created without a mapping")
		return nil, nil
	}

	_, err := svc.StartPortal(context.Background(), 7)
	if !errors.Is(err, ErrNoBillingAccount) {
		t.Fatalf("err = %v, want ErrNoBillingAccount", err)
	}
}

func TestStartPortalForExistingCustomer(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, testConfig())
	repo.mappings[7] = &models.CustomerMapping{
		UserID:             7,
		Provider:           models.BillingProviderStripe,
		ExternalCustomerID: "cus_a",
	}

	var captured *stripelib.BillingPortalSessionParams
	svc.createPortalSession = func(params *stripelib.BillingPortalSessionParams) (*stripelib.BillingPortalSession, error) {
		captured = params
		return &stripelib.BillingPortalSession{URL: "https://portal.example/p1"}, nil
	}

	url, err := svc.StartPortal(context.Background(), 7)
	if err != nil {
		t.Fatalf("StartPortal: %v", err)
	}
	if url != "https://portal.example/p1" {
		t.Fatalf("url = %q", url)
	}
	if stripelib.StringValue(captured.Customer) != "cus_a" {
		t.Fatalf("customer = %q, want cus_a", stripelib.StringValue(captured.Customer))
	}
}
