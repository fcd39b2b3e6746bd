package controllers

import (
	"context"
	"log"
	"time"

	"github.com/TobiasKell/NoteMorph/internal/pkg/entitlements"
	"github.com/TobiasKell/NoteMorph/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

var entitlementGate *entitlements.Gate

// InitializeEntitlementController wires the gate used by the authorize and
// note-transform handlers. Passing nil defers to a DB-backed default.
func InitializeEntitlementController(gate *entitlements.Gate) {
	entitlementGate = gate
}

func getEntitlementGate() *entitlements.Gate {
	if entitlementGate == nil {
		entitlementGate = entitlements.NewGate(getBillingService())
	}
	return entitlementGate
}

// HandleEntitlementAuthorize consumes one entitlement unit for the logged-in
// user: free pass for subscribers, one credit otherwise.
func HandleEntitlementAuthorize(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonUnauthorized(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	decision, err := getEntitlementGate().Authorize(ctx, userCtx.UserID)
	if err != nil {
		log.Printf("entitlements: authorize failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "authorize_failed", "entitlement check failed, please retry")
	}

	resp := fiber.Map{
		"allowed":   decision.Allowed,
		"unlimited": decision.Unlimited,
	}
	if !decision.Unlimited {
		resp["remaining_credits"] = decision.RemainingCredits
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleEntitlementStatus reports the current entitlement without consuming
// anything. Used by the frontend to render the credit counter.
func HandleEntitlementStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonUnauthorized(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	decision, err := getEntitlementGate().Peek(ctx, userCtx.UserID)
	if err != nil {
		log.Printf("entitlements: status lookup failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "status_failed", "entitlement status unavailable")
	}

	resp := fiber.Map{
		"unlimited": decision.Unlimited,
	}
	if !decision.Unlimited {
		resp["remaining_credits"] = decision.RemainingCredits
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
