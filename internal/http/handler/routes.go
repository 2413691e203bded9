package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"docgov/internal/auth"
	"docgov/internal/http/middleware"
	"docgov/internal/policy"
	"docgov/internal/review"
	"docgov/internal/service"
)

// Deps carries what the routes need. Nil services leave their routes
// unregistered, so the reviewer process can mount only the override route.
type Deps struct {
	DB       *sql.DB
	Gatherer prometheus.Gatherer
	Auth     *auth.Authenticator

	Documents service.DocumentService
	Policies  policy.Service
	Reviews   review.Service
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.DB != nil {
		app.Get("/health", HealthCheck(d.DB))
	}
	app.Get("/healthz", Liveness())
	if d.Gatherer != nil {
		app.Get("/metrics", Metrics(d.Gatherer))
	}

	authed := middleware.Auth(d.Auth)

	if d.Documents != nil {
		app.Post("/documents", authed, SubmitDocument(d.Documents))
		app.Get("/documents", authed, ListDocuments(d.Documents))
		app.Get("/documents/:id", authed, GetDocument(d.Documents))
	}
	if d.Policies != nil {
		app.Put("/policies/:key", authed, UpdatePolicy(d.Policies))
	}
	if d.Reviews != nil {
		app.Post("/reviews/:id/override", authed, OverrideReview(d.Reviews))
	}
}

// identity returns the caller stored by middleware.Auth.
func identity(c *fiber.Ctx) (auth.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	return id, nil
}
