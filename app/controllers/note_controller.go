package controllers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/TobiasKell/NoteMorph/app/models"
	"github.com/TobiasKell/NoteMorph/app/repository"
	"github.com/TobiasKell/NoteMorph/internal/pkg/metrics/counter"
	"github.com/TobiasKell/NoteMorph/internal/pkg/notegen"
	"github.com/TobiasKell/NoteMorph/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var noteGenerator notegen.Generator

// InitializeNoteController wires the completion generator. Passing nil
// defers to the environment-configured HTTP generator.
func InitializeNoteController(gen notegen.Generator) {
	noteGenerator = gen
}

func getNoteGenerator() notegen.Generator {
	if noteGenerator == nil {
		noteGenerator = notegen.NewFromEnv()
	}
	return noteGenerator
}

type noteTransformRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Instruction string `json:"instruction"`
}

// HandleNoteTransform is the metered action: authorize through the
// entitlement gate, then run the note through the completion provider.
func HandleNoteTransform(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonUnauthorized(c)
	}

	var req noteTransformRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "request body could not be parsed")
	}
	if strings.TrimSpace(req.Content) == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "content is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	decision, err := getEntitlementGate().Authorize(ctx, userCtx.UserID)
	if err != nil {
		log.Printf("notes: entitlement check failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "authorize_failed", "entitlement check failed, please retry")
	}
	if !decision.Allowed {
		return jsonError(c, fiber.StatusPaymentRequired, "credits_exhausted", "Free credits used up - subscribe for unlimited transformations")
	}

	transformed, err := getNoteGenerator().Transform(ctx, req.Instruction, req.Content)
	if err != nil {
		log.Printf("notes: transformation failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusBadGateway, "transform_failed", "transformation failed, please try again")
	}

	note := models.Note{
		UUID:        uuid.NewString(),
		UserID:      userCtx.UserID,
		Title:       strings.TrimSpace(req.Title),
		Content:     req.Content,
		Transformed: transformed,
	}
	if err := repository.GetGlobalFactory().GetNoteRepository().Create(&note); err != nil {
		log.Printf("notes: persisting note failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "note_save_failed", "note could not be saved")
	}

	resp := fiber.Map{
		"uuid":        note.UUID,
		"transformed": note.Transformed,
		"unlimited":   decision.Unlimited,
	}
	if !decision.Unlimited {
		resp["remaining_credits"] = decision.RemainingCredits
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleNoteList returns the user's notes, newest first, paginated via
// ?page= with a fixed page size.
func HandleNoteList(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonUnauthorized(c)
	}

	const pageSize = 25
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	repo := repository.GetGlobalFactory().GetNoteRepository()
	notes, err := repo.GetByUserID(userCtx.UserID, (page-1)*pageSize, pageSize)
	if err != nil {
		log.Printf("notes: listing failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "note_list_failed", "notes could not be loaded")
	}
	total, err := repo.CountByUserID(userCtx.UserID)
	if err != nil {
		log.Printf("notes: counting failed for user %d: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "note_list_failed", "notes could not be loaded")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notes": notes,
		"page":  page,
		"total": total,
	})
}

// HandleNoteShow returns a single note by UUID. Notes are private to their
// owner.
func HandleNoteShow(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonUnauthorized(c)
	}

	note, err := repository.GetGlobalFactory().GetNoteRepository().GetByUUID(c.Params("uuid"))
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "note not found")
	}
	if note.UserID != userCtx.UserID {
		return jsonError(c, fiber.StatusNotFound, "not_found", "note not found")
	}

	if err := counter.AddNoteView(note.ID); err != nil {
		log.Printf("notes: view counter failed for note %d: %v", note.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(note)
}
