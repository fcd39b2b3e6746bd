package billing

import (
	"context"
	"errors"

	"github.com/TobiasKell/NoteMorph/app/models"
	"gorm.io/gorm"
)

// SubscriptionState reads the stored subscription state for a user. Users
// the pipeline has never touched read as status "none".
func (s *Service) SubscriptionState(ctx context.Context, userID uint) (*models.SubscriptionState, error) {
	_ = ctx
	state, err := s.repo.GetSubscriptionState(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.SubscriptionState{
				UserID: userID,
				Status: models.SubscriptionStatusNone,
			}, nil
		}
		return nil, err
	}
	return state, nil
}

// ApplySubscription applies a processor-reported transition if and only if
// the event is newer than the stored last_event_timestamp. Returns whether
// the write was applied; stale events report false and change nothing.
// overrideTies lets an event at the same timestamp through, which is how
// subscription lifecycle events win ties against checkout completion.
func (s *Service) ApplySubscription(ctx context.Context, userID uint, status, externalCustomerID, priceID string, eventTimestamp int64, overrideTies bool) (bool, error) {
	_ = ctx
	if userID == 0 {
		return false, errors.New("billing: user_id is required")
	}
	applied, err := s.repo.ApplySubscriptionState(userID, NormalizeSubscriptionStatus(status), externalCustomerID, priceID, eventTimestamp, overrideTies)
	if err != nil {
		return false, err
	}
	return applied, nil
}
