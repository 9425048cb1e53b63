package response

import (
	"errors"

	apperrors "settlr/internal/errors"

	"github.com/gofiber/fiber/v2"
)

const internalCode = "INTERNAL_ERROR"

var statusByCode = map[string]int{
	apperrors.ErrValidation.Code:               fiber.StatusBadRequest,
	apperrors.ErrUnsupportedProvider.Code:      fiber.StatusBadRequest,
	apperrors.ErrInsufficientFunds.Code:        fiber.StatusPaymentRequired,
	apperrors.ErrInvalidSignature.Code:         fiber.StatusForbidden,
	apperrors.ErrForbidden.Code:                fiber.StatusForbidden,
	apperrors.ErrSettlementNotFound.Code:       fiber.StatusNotFound,
	apperrors.ErrUserNotFound.Code:             fiber.StatusNotFound,
	apperrors.ErrTransferNotFound.Code:         fiber.StatusNotFound,
	apperrors.ErrDuplicateReference.Code:       fiber.StatusConflict,
	apperrors.ErrInvalidTransition.Code:        fiber.StatusConflict,
	apperrors.ErrInconsistentState.Code:        fiber.StatusConflict,
	apperrors.ErrMissingPayoutDestination.Code: fiber.StatusUnprocessableEntity,
	apperrors.ErrProviderRejected.Code:         fiber.StatusUnprocessableEntity,
	apperrors.ErrProviderUnavailable.Code:      fiber.StatusBadGateway,
	apperrors.ErrInvalidResponse.Code:          fiber.StatusBadGateway,
	apperrors.ErrTimeout.Code:                  fiber.StatusGatewayTimeout,
}

func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// StatusOf returns the HTTP status an error is rendered with.
func StatusOf(err error) int {
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		if status, ok := statusByCode[de.Code]; ok {
			return status
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// FromError renders err. Only a DomainError's code and message reach the
// client; causes and unknown errors are never echoed.
func FromError(c *fiber.Ctx, err error) error {
	status := StatusOf(err)

	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return Error(c, status, de.Code, de.Message)
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return Error(c, status, codeForStatus(status), fe.Message)
	}
	return Error(c, status, internalCode, "internal server error")
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperrors.ErrValidation.Code
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return apperrors.ErrForbidden.Code
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	return internalCode
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, apperrors.ErrValidation.Code, message)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, apperrors.ErrForbidden.Code, message)
}

// ErrorHandler is the fiber.Config ErrorHandler; it renders errors returned
// by handlers in the same envelope as FromError.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return FromError(c, err)
}
