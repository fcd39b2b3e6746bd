package controllers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/TobiasKell/NoteMorph/internal/pkg/billing"
	"github.com/TobiasKell/NoteMorph/internal/pkg/database"
	"github.com/TobiasKell/NoteMorph/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

var billingService *billing.Service

// InitializeBillingController wires the billing service used by the billing
// and entitlement handlers. Passing nil defers to a DB-backed default.
func InitializeBillingController(svc *billing.Service) {
	billingService = svc
}

func getBillingService() *billing.Service {
	if billingService == nil {
		billingService = billing.NewServiceFromDB(database.GetDB())
	}
	return billingService
}

// HandleBillingCheckout starts a processor-hosted checkout session for the
// logged-in user and returns its URL.
func HandleBillingCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonUnauthorized(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	url, err := getBillingService().StartCheckout(ctx, userCtx.UserID)
	if err != nil {
		log.Printf("billing: checkout failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "checkout_failed", "Checkout could not be started, please try again")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"checkout_url": url})
}

// HandleBillingPortal opens the processor's billing portal for users with an
// existing billing account. 409 when there is nothing to manage.
func HandleBillingPortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonUnauthorized(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	url, err := getBillingService().StartPortal(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrNoBillingAccount) {
			return jsonError(c, fiber.StatusConflict, "no_billing_account", "Subscribe first to manage billing")
		}
		log.Printf("billing: portal failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "portal_failed", "Billing portal could not be opened, please try again")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"portal_url": url})
}

// HandleBillingWebhook ingests processor event notifications. 200 for
// applied, ignored, queued or duplicate deliveries; 400 for signature
// failures (permanent); 500 for transient persistence failures so the
// sender redelivers.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, err := getBillingService().ProcessWebhook(ctx, rawBody, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
		}
		log.Printf("billing: webhook %s failed: %v", outcome.EventType, err)
		return jsonError(c, fiber.StatusInternalServerError, "webhook_failed", "event could not be processed")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"duplicate": outcome.Duplicate,
	})
}
