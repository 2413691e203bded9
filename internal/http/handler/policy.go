package handler

import (
	"github.com/gofiber/fiber/v2"

	"docgov/internal/auth"
	"docgov/internal/model"
	"docgov/internal/policy"
)

type updatePolicyRequest struct {
	Value *string `json:"value"`
}

// UpdatePolicy stores a policy value. Admin only.
//
// @Summary Update a policy value
// @Tags policies
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param key path string true "Policy key"
// @Param body body updatePolicyRequest true "New value"
// @Success 200
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Router /policies/{key} [put]
func UpdatePolicy(svc policy.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := identity(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		if err := auth.Require(caller, model.RoleAdmin); err != nil {
			return writeServiceError(c, err)
		}

		var req updatePolicyRequest
		if err := c.BodyParser(&req); err != nil || req.Value == nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", `body must be {"value": "<string>"}`)
		}

		key := c.Params("key")
		if err := svc.UpdatePolicy(c.UserContext(), key, *req.Value); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"key": key, "value": *req.Value})
	}
}
