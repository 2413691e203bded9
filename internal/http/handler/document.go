package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docgov/internal/model"
	"docgov/internal/service"
)

// SubmitDocument accepts a multipart upload (field "file") and runs it
// through governance before answering.
//
// @Summary Submit a document
// @Tags documents
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document to submit"
// @Success 200 {object} service.SubmitResult
// @Failure 400 {object} errorPayload
// @Failure 403 {object} rejectionPayload
// @Router /documents [post]
func SubmitDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := identity(c)
		if err != nil {
			return writeServiceError(c, err)
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		res, err := svc.Submit(c.UserContext(), service.SubmitInput{
			Caller:      caller,
			Filename:    fh.Filename,
			ContentType: ct,
			Body:        f,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(res)
	}
}

// ListDocuments pages through documents, optionally filtered by status.
//
// @Summary List documents
// @Tags documents
// @Security BearerAuth
// @Produce json
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} service.DocumentListResult
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Router /documents [get]
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := identity(c)
		if err != nil {
			return writeServiceError(c, err)
		}

		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		status := model.Status(c.Query("status"))
		switch status {
		case "", model.StatusIngested, model.StatusPendingReview, model.StatusCompleted, model.StatusRejected:
		default:
			return writeError(c, fiber.StatusBadRequest, "INVALID_STATUS", "invalid status")
		}

		res, err := svc.List(c.UserContext(), caller, status, limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetDocument returns one document with its summary and a download link.
//
// @Summary Get a document
// @Tags documents
// @Security BearerAuth
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} service.DocumentView
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [get]
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := identity(c)
		if err != nil {
			return writeServiceError(c, err)
		}

		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		view, err := svc.Get(c.UserContext(), caller, id)
		if err != nil {
			if errors.Is(err, service.ErrIDRequired) {
				return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
			}
			return writeServiceError(c, err)
		}
		return c.JSON(view)
	}
}
