package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/TobiasKell/NoteMorph/internal/pkg/statistics"
)

// HandleStats serves the cached public usage numbers.
func HandleStats(c *fiber.Ctx) error {
	data := statistics.GetStatisticsData()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"total_notes":        data.TotalNotes,
		"notes_today":        data.TodayNotes,
		"total_users":        data.TotalUsers,
		"active_subscribers": data.ActiveSubscribers,
	})
}
