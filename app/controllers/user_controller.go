package controllers

import (
	"log"

	"github.com/TobiasKell/NoteMorph/app/models"
	"github.com/TobiasKell/NoteMorph/internal/pkg/database"
	"github.com/TobiasKell/NoteMorph/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// HandleUserAPIKeyIssue generates a fresh API key for the logged-in user and
// returns the raw secret once. Only the hash is stored.
func HandleUserAPIKeyIssue(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonUnauthorized(c)
	}

	db := database.GetDB()
	us, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		log.Printf("user: loading settings failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "settings_failed", "settings could not be loaded")
	}

	rawKey, err := us.IssueAPIKey()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "api_key_failed", "API key could not be generated")
	}
	if err := db.Save(us).Error; err != nil {
		log.Printf("user: saving api key failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "api_key_failed", "API key could not be saved")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"api_key": rawKey,
		"prefix":  us.APIKeyPrefix,
	})
}

// HandleUserAPIKeyRevoke revokes the user's API key.
func HandleUserAPIKeyRevoke(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonUnauthorized(c)
	}

	db := database.GetDB()
	us, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "settings_failed", "settings could not be loaded")
	}

	us.RevokeAPIKey()
	if err := db.Save(us).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "api_key_failed", "API key could not be revoked")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
