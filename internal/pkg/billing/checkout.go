package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	stripelib "github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

// StartCheckout creates a processor-hosted checkout session for the fixed
// subscription price and returns its URL. The session and the subscription
// it produces are both tagged with the internal user_id, so the activation
// webhook can resolve the user even before any mapping exists on the
// processor side.
func (s *Service) StartCheckout(ctx context.Context, userID uint) (string, error) {
	customerID, err := s.GetOrCreateCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	uid := strconv.FormatUint(uint64(userID), 10)
	params := &stripelib.CheckoutSessionParams{
		Mode:              stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		Customer:          stripelib.String(customerID),
		ClientReferenceID: stripelib.String(uid),
		SuccessURL:        stripelib.String(s.cfg.SuccessURL),
		CancelURL:         stripelib.String(s.cfg.CancelURL),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(s.cfg.PriceID),
				Quantity: stripelib.Int64(1),
			},
		},
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": uid},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", uid)

	session, err := s.createCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("%w: create checkout session: %v", ErrProviderFailure, err)
	}
	return session.URL, nil
}

// StartPortal creates a billing portal session for an existing customer.
// Users who never started a subscription have nothing to manage and get
// ErrNoBillingAccount; no external call is made for them.
func (s *Service) StartPortal(ctx context.Context, userID uint) (string, error) {
	m, err := s.repo.GetCustomerMapping(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoBillingAccount
		}
		return "", err
	}

	params := &stripelib.BillingPortalSessionParams{
		Customer:  stripelib.String(m.ExternalCustomerID),
		ReturnURL: stripelib.String(s.cfg.PortalReturnURL),
	}
	params.Context = ctx

	session, err := s.createPortalSession(params)
	if err != nil {
		return "", fmt.Errorf("%w: create portal session: %v", ErrProviderFailure, err)
	}
	return session.URL, nil
}
