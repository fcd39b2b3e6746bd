package billing

import (
	"strconv"

	"github.com/TobiasKell/NoteMorph/internal/pkg/cache"
	"github.com/TobiasKell/NoteMorph/internal/pkg/env"
	stripelib "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"gorm.io/gorm"
)

// Service is the billing and usage-metering core: customer identity mapping,
// credit ledger, subscription state, checkout/portal orchestration and the
// webhook ingestion pipeline.
type Service struct {
	repo   Repository
	locker Locker
	cfg    Config

	// Stripe calls are injected so tests can stub the provider.
	createCustomer        func(params *stripelib.CustomerParams) (*stripelib.Customer, error)
	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	createPortalSession   func(params *stripelib.BillingPortalSessionParams) (*stripelib.BillingPortalSession, error)
}

// NewService creates a billing service from an injected repository and locker.
func NewService(repo Repository, locker Locker, cfg Config) *Service {
	return &Service{
		repo:                  repo,
		locker:                locker,
		cfg:                   cfg,
		createCustomer:        customer.New,
		createCheckoutSession: checkoutsession.New,
		createPortalSession:   portalsession.New,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle with the
// Redis-backed lease and environment configuration.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewRedisLocker(cache.GetClient()), ConfigFromEnv())
}

// ConfigFromEnv reads the billing configuration surface.
func ConfigFromEnv() Config {
	grant, err := strconv.ParseInt(env.GetEnv("FREE_CREDIT_GRANT", "10"), 10, 64)
	if err != nil || grant < 0 {
		grant = 10
	}
	return Config{
		WebhookSecret:   env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		PriceID:         env.GetEnv("STRIPE_PRICE_ID", ""),
		FreeCreditGrant: grant,
		SuccessURL:      env.GetEnv("CHECKOUT_SUCCESS_URL", "http://localhost:4000/billing/success"),
		CancelURL:       env.GetEnv("CHECKOUT_CANCEL_URL", "http://localhost:4000/billing/cancel"),
		PortalReturnURL: env.GetEnv("PORTAL_RETURN_URL", "http://localhost:4000/account"),
	}
}
