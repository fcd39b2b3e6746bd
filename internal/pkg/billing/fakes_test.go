package billing

import (
	"sync"
	"time"

	"github.com/TobiasKell/NoteMorph/app/models"
	stripelib "github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository that mimics the conditional-write
// semantics of the real one: insert-if-absent, guarded decrement and
// timestamp fencing all behave like their SQL counterparts.
type fakeRepo struct {
	mu sync.Mutex

	mappings map[uint]*models.CustomerMapping
	balances map[uint]*models.CreditBalance
	subs     map[uint]*models.SubscriptionState
	events   map[string]*models.BillingWebhookEvent
	queue    []*models.BillingReconciliationItem

	nextEventID uint

	// applyErr fails the next ApplySubscriptionState calls until cleared.
	applyErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		mappings: make(map[uint]*models.CustomerMapping),
		balances: make(map[uint]*models.CreditBalance),
		subs:     make(map[uint]*models.SubscriptionState),
		events:   make(map[string]*models.BillingWebhookEvent),
	}
}

func (f *fakeRepo) GetCustomerMapping(userID uint) (*models.CustomerMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.mappings[userID]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) GetCustomerMappingByExternalID(provider, externalCustomerID string) (*models.CustomerMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.mappings {
		if m.Provider == provider && m.ExternalCustomerID == externalCustomerID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreateCustomerMappingIfAbsent(m *models.CustomerMapping) (bool, *models.CustomerMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.mappings[m.UserID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	cp := *m
	f.mappings[m.UserID] = &cp
	out := cp
	return true, &out, nil
}

func (f *fakeRepo) EnsureCreditBalance(userID uint, initialGrant int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[userID]; !ok {
		f.balances[userID] = &models.CreditBalance{UserID: userID, CreditsRemaining: initialGrant}
	}
	return nil
}

func (f *fakeRepo) GetCreditBalance(userID uint) (*models.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[userID]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) DecrementCredit(userID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[userID]
	if !ok || b.CreditsRemaining <= 0 {
		return false, nil
	}
	b.CreditsRemaining--
	return true, nil
}

func (f *fakeRepo) ResetCreditBalance(userID uint, newBalance int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[userID]; ok {
		b.CreditsRemaining = newBalance
		return nil
	}
	f.balances[userID] = &models.CreditBalance{UserID: userID, CreditsRemaining: newBalance}
	return nil
}

func (f *fakeRepo) GetSubscriptionState(userID uint) (*models.SubscriptionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ApplySubscriptionState(userID uint, status, externalCustomerID, priceID string, eventTimestamp int64, overrideTies bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return false, f.applyErr
	}
	s, ok := f.subs[userID]
	if !ok {
		s = &models.SubscriptionState{UserID: userID, Status: models.SubscriptionStatusNone}
		f.subs[userID] = s
	}
	if s.LastEventTimestamp > eventTimestamp || (!overrideTies && s.LastEventTimestamp == eventTimestamp) {
		return false, nil
	}
	s.Status = status
	s.ExternalCustomerID = externalCustomerID
	s.CurrentPriceID = priceID
	s.LastEventTimestamp = eventTimestamp
	return true, nil
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := f.events[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	f.nextEventID++
	cp := *event
	cp.ID = f.nextEventID
	f.events[key] = &cp
	out := cp
	return true, &out, nil
}

func (f *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeRepo) PurgeProcessedEventsBefore(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for key, e := range f.events {
		if e.ProcessedAt != nil && e.ProcessingError == "" && e.CreatedAt.Before(cutoff) {
			delete(f.events, key)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeRepo) EnqueueReconciliationItem(item *models.BillingReconciliationItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.queue {
		if existing.ItemKey == item.ItemKey {
			return nil
		}
	}
	cp := *item
	f.queue = append(f.queue, &cp)
	return nil
}

func (f *fakeRepo) setApplyError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyErr = err
}

func (f *fakeRepo) queuedItems() []*models.BillingReconciliationItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.BillingReconciliationItem, len(f.queue))
	copy(out, f.queue)
	return out
}

func newTestService(repo Repository, cfg Config) *Service {
	svc := NewService(repo, NewMemoryLocker(), cfg)
	svc.createCustomer = func(params *stripelib.CustomerParams) (*stripelib.Customer, error) {
		return &stripelib.Customer{ID: "cus_test"}, nil
	}
	svc.createCheckoutSession = func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		return &stripelib.CheckoutSession{URL: "https://checkout.example/session"}, nil
	}
	svc.createPortalSession = func(params *stripelib.BillingPortalSessionParams) (*stripelib.BillingPortalSession, error) {
		return &stripelib.BillingPortalSession{URL: "https://portal.example/session"}, nil
	}
	return svc
}
