package billing

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// SpendCredit atomically consumes one free-tier credit. The balance row is
// lazily created with the onboarding grant on a user's first metered action.
// Callers on the unlimited path (active/trialing subscription) must not call
// this; the entitlement gate enforces that ordering.
func (s *Service) SpendCredit(ctx context.Context, userID uint) (SpendResult, error) {
	_ = ctx
	if err := s.repo.EnsureCreditBalance(userID, s.cfg.FreeCreditGrant); err != nil {
		return SpendResult{}, err
	}

	spent, err := s.repo.DecrementCredit(userID)
	if err != nil {
		return SpendResult{}, err
	}

	b, err := s.repo.GetCreditBalance(userID)
	if err != nil {
		if spent {
			return SpendResult{}, err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SpendResult{Allowed: false, Remaining: 0}, nil
		}
		return SpendResult{}, err
	}
	return SpendResult{Allowed: spent, Remaining: b.CreditsRemaining}, nil
}

// ResetCredits sets an absolute balance, used when a user drops from a paid
// subscription back to the free tier. Overwrites unconditionally.
func (s *Service) ResetCredits(ctx context.Context, userID uint, newBalance int64) error {
	_ = ctx
	return s.repo.ResetCreditBalance(userID, newBalance)
}

// RemainingCredits reads the balance without spending. Missing rows read as
// the untouched onboarding grant.
func (s *Service) RemainingCredits(ctx context.Context, userID uint) (int64, error) {
	_ = ctx
	b, err := s.repo.GetCreditBalance(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.cfg.FreeCreditGrant, nil
		}
		return 0, err
	}
	return b.CreditsRemaining, nil
}
