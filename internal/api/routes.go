package api

import (
	"github.com/gofiber/fiber/v3"
)

func SetupRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)

	api := app.Group("/api")

	// Scan polling
	api.Get("/scans/:jobId", h.GetScanStatus)

	// Repositories
	repos := api.Group("/repositories")
	repos.Get("/", h.ListRepositories)
	repos.Post("/", h.CreateRepository)
	repos.Get("/:id", h.GetRepository)
	repos.Delete("/:id", h.DeleteRepository)
	repos.Post("/:id/scan", h.StartScan)
	repos.Get("/:id/scans/latest", h.GetLatestScan)
}
