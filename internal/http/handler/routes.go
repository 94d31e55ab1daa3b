package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"stegapi/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// db may be nil when the audit trail is disabled.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.StegoService, maxImageBytes int64) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/api")
	api.Post("/hide", Hide(svc, maxImageBytes))
	api.Post("/extract", Extract(svc, maxImageBytes))
	api.Get("/operations", ListOperations(svc))
	api.Get("/archive/:id", GetArchive(svc))
	api.Delete("/archive/:id", DeleteArchive(svc))
}
