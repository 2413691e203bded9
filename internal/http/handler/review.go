package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docgov/internal/review"
)

type overrideRequest struct {
	Action string `json:"action"`
}

// OverrideReview resolves a pending_review document. Reviewer only.
//
// @Summary Approve or reject a document pending review
// @Tags reviews
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param body body overrideRequest true "Reviewer action"
// @Success 200 {object} review.OverrideResult
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /reviews/{id}/override [post]
func OverrideReview(svc review.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := identity(c)
		if err != nil {
			return writeServiceError(c, err)
		}

		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		var req overrideRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", `body must be {"action": "approve"|"reject"}`)
		}

		res, err := svc.Override(c.UserContext(), caller, id, req.Action)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}
