package entitlements

import (
	"context"
	"testing"
	"time"

	"github.com/TobiasKell/NoteMorph/app/models"
	"github.com/TobiasKell/NoteMorph/internal/pkg/billing"
	"gorm.io/gorm"
)

// gateRepo is a minimal billing.Repository for gate tests. It tracks whether
// the ledger was touched so the subscription-before-spend ordering can be
// asserted.
type gateRepo struct {
	sub           *models.SubscriptionState
	balance       int64
	hasBalance    bool
	ledgerTouched bool
}

func (r *gateRepo) GetCustomerMapping(uint) (*models.CustomerMapping, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *gateRepo) GetCustomerMappingByExternalID(string, string) (*models.CustomerMapping, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *gateRepo) CreateCustomerMappingIfAbsent(m *models.CustomerMapping) (bool, *models.CustomerMapping, error) {
	return true, m, nil
}

func (r *gateRepo) EnsureCreditBalance(_ uint, initialGrant int64) error {
	r.ledgerTouched = true
	if !r.hasBalance {
		r.balance = initialGrant
		r.hasBalance = true
	}
	return nil
}

func (r *gateRepo) GetCreditBalance(uint) (*models.CreditBalance, error) {
	if !r.hasBalance {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.CreditBalance{CreditsRemaining: r.balance}, nil
}

func (r *gateRepo) DecrementCredit(uint) (bool, error) {
	r.ledgerTouched = true
	if !r.hasBalance || r.balance <= 0 {
		return false, nil
	}
	r.balance--
	return true, nil
}

func (r *gateRepo) ResetCreditBalance(_ uint, newBalance int64) error {
	r.balance = newBalance
	r.hasBalance = true
	return nil
}

func (r *gateRepo) GetSubscriptionState(userID uint) (*models.SubscriptionState, error) {
	if r.sub == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.sub, nil
}

func (r *gateRepo) ApplySubscriptionState(uint, string, string, string, int64, bool) (bool, error) {
	return false, nil
}

func (r *gateRepo) CreateWebhookEventIfNotExists(e *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	return true, e, nil
}

func (r *gateRepo) MarkWebhookProcessed(uint, string) error { return nil }

func (r *gateRepo) PurgeProcessedEventsBefore(time.Time) (int64, error) { return 0, nil }

func (r *gateRepo) EnqueueReconciliationItem(*models.BillingReconciliationItem) error { return nil }

func newGate(repo *gateRepo, grant int64) *Gate {
	svc := billing.NewService(repo, billing.NewMemoryLocker(), billing.Config{FreeCreditGrant: grant})
	return NewGate(svc)
}

func TestAuthorizeSubscriberSkipsLedger(t *testing.T) {
	repo := &gateRepo{sub: &models.SubscriptionState{UserID: 7, Status: models.SubscriptionStatusActive}}
	gate := newGate(repo, 10)

	d, err := gate.Authorize(context.Background(), 7)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed || !d.Unlimited {
		t.Fatalf("decision = %+v, want allowed unlimited", d)
	}
	if repo.ledgerTouched {
		t.Fatal("subscriber authorization must not touch the credit ledger")
	}
}

func TestAuthorizeTrialingCountsAsSubscribed(t *testing.T) {
	repo := &gateRepo{sub: &models.SubscriptionState{UserID: 7, Status: models.SubscriptionStatusTrialing}}
	gate := newGate(repo, 10)

	d, err := gate.Authorize(context.Background(), 7)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed || !d.Unlimited {
		t.Fatalf("decision = %+v, want allowed unlimited", d)
	}
}

func TestAuthorizeFreeUserSpendsCredit(t *testing.T) {
	repo := &gateRepo{}
	gate := newGate(repo, 3)

	d, err := gate.Authorize(context.Background(), 7)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed || d.Unlimited {
		t.Fatalf("decision = %+v, want allowed metered", d)
	}
	if d.RemainingCredits != 2 {
		t.Fatalf("remaining = %d, want 2", d.RemainingCredits)
	}
}

func TestAuthorizeDeniesExhaustedUser(t *testing.T) {
	repo := &gateRepo{hasBalance: true, balance: 0}
	gate := newGate(repo, 3)

	d, err := gate.Authorize(context.Background(), 7)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed {
		t.Fatal("exhausted user must be denied")
	}
	if d.RemainingCredits != 0 {
		t.Fatalf("remaining = %d, want 0", d.RemainingCredits)
	}
}

func TestAuthorizeCanceledSubscriptionIsMetered(t *testing.T) {
	repo := &gateRepo{
		sub:        &models.SubscriptionState{UserID: 7, Status: models.SubscriptionStatusCanceled},
		hasBalance: true,
		balance:    1,
	}
	gate := newGate(repo, 3)

	d, err := gate.Authorize(context.Background(), 7)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed || d.Unlimited {
		t.Fatalf("decision = %+v, want allowed metered", d)
	}
	if d.RemainingCredits != 0 {
		t.Fatalf("remaining = %d, want 0", d.RemainingCredits)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	repo := &gateRepo{hasBalance: true, balance: 2}
	gate := newGate(repo, 3)

	for i := 0; i < 3; i++ {
		d, err := gate.Peek(context.Background(), 7)
		if err != nil {
			t.Fatalf("Peek: %v", err)
		}
		if !d.Allowed || d.RemainingCredits != 2 {
			t.Fatalf("decision = %+v, want 2 credits untouched", d)
		}
	}
}
