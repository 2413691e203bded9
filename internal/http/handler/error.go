package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"docgov/internal/auth"
	"docgov/internal/http/middleware"
	"docgov/internal/policy"
	"docgov/internal/review"
	"docgov/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rejectionPayload is the 403 body for governance rejections; doc_id lets
// the caller correlate with the audit trail.
type rejectionPayload struct {
	errorPayload
	DocID string `json:"doc_id"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

func writeRejection(c *fiber.Ctx, rej *service.RejectionError) error {
	return c.Status(fiber.StatusForbidden).JSON(rejectionPayload{
		errorPayload: errorPayload{
			RequestID: requestIDFromCtx(c),
			Error:     errorEnvelope{Code: "CONTENT_REJECTED", Message: rej.Reason},
		},
		DocID: rej.DocID,
	})
}

// writeServiceError maps domain errors to HTTP responses. Anything
// unrecognised becomes a generic 500.
func writeServiceError(c *fiber.Ctx, err error) error {
	var rej *service.RejectionError
	switch {
	case errors.As(err, &rej):
		return writeRejection(c, rej)
	case errors.Is(err, auth.ErrUnauthorized):
		return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "insufficient role")
	case errors.Is(err, service.ErrNotFound), errors.Is(err, review.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, review.ErrOverrideConflict):
		return writeError(c, fiber.StatusConflict, "OVERRIDE_CONFLICT", "document is not pending review")
	case errors.Is(err, review.ErrInvalidAction):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ACTION", "action must be approve or reject")
	case errors.Is(err, policy.ErrUnknownPolicyKey):
		return writeError(c, fiber.StatusBadRequest, "UNKNOWN_POLICY_KEY", "unknown policy key")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHORIZED", fe.Message)
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "upload exceeds the size limit")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
