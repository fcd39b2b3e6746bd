package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/TobiasKell/NoteMorph/app/models"
	stripelib "github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

const customerLeaseTTL = 30 * time.Second

// GetOrCreateCustomer maps a user to their external processor customer,
// creating both the external record and the mapping row on first use.
//
// Concurrent callers for the same user are serialized by a per-user lease so
// at most one external customer is ever created; the unique index on user_id
// is the backstop if the lease expires mid-flight. The mapping is re-checked
// after acquiring the lease and again on insert conflict, so a retry after a
// failed persistence never creates a second external customer.
func (s *Service) GetOrCreateCustomer(ctx context.Context, userID uint) (string, error) {
	if userID == 0 {
		return "", errors.New("billing: user_id is required")
	}

	if m, err := s.repo.GetCustomerMapping(userID); err == nil {
		return m.ExternalCustomerID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	leaseKey := "billing:customer_lease:" + strconv.FormatUint(uint64(userID), 10)
	for {
		release, ok, err := s.locker.Acquire(ctx, leaseKey, customerLeaseTTL)
		if err != nil {
			return "", err
		}
		if ok {
			defer release()
			break
		}
		// Another request is creating the customer right now. Wait for it
		// and pick up its result via the mapping re-check.
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
		if m, err := s.repo.GetCustomerMapping(userID); err == nil {
			return m.ExternalCustomerID, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}

	// Holding the lease: re-check before touching the provider.
	if m, err := s.repo.GetCustomerMapping(userID); err == nil {
		return m.ExternalCustomerID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	params := &stripelib.CustomerParams{}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatUint(uint64(userID), 10))
	cust, err := s.createCustomer(params)
	if err != nil {
		return "", fmt.Errorf("%w: create customer: %v", ErrProviderFailure, err)
	}

	created, stored, err := s.repo.CreateCustomerMappingIfAbsent(&models.CustomerMapping{
		UserID:             userID,
		Provider:           models.BillingProviderStripe,
		ExternalCustomerID: cust.ID,
	})
	if err != nil {
		// External creation succeeded but persistence failed. The caller
		// retries; the retry re-checks the mapping first and the orphaned
		// customer is reported for cleanup rather than duplicated blindly.
		log.Printf("billing: mapping persistence failed for user %d (stripe customer %s): %v", userID, cust.ID, err)
		return "", err
	}
	if !created && stored.ExternalCustomerID != cust.ID {
		// Lost the race despite the lease (expired TTL). The unique index
		// kept the mapping single; the extra external customer is orphaned.
		log.Printf("billing: duplicate stripe customer %s for user %d, keeping %s", cust.ID, userID, stored.ExternalCustomerID)
	}
	return stored.ExternalCustomerID, nil
}

// ResolveUserByCustomer reverse-maps an external customer id to the internal
// user. Used by the webhook pipeline for subscription lifecycle events that
// only carry the customer id.
func (s *Service) ResolveUserByCustomer(externalCustomerID string) (uint, error) {
	m, err := s.repo.GetCustomerMappingByExternalID(models.BillingProviderStripe, externalCustomerID)
	if err != nil {
		return 0, err
	}
	return m.UserID, nil
}
