package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/certwatch/pkg/models"
)

// SendSuccess writes data inside the standard success envelope.
func SendSuccess(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(models.APIResponse{
		Status: "success",
		Data:   data,
	})
}

// SendErrorWithType writes an error envelope with a client-facing type.
func SendErrorWithType(c *fiber.Ctx, status int, message string, errorType models.ErrorType) error {
	return c.Status(status).JSON(models.APIResponse{
		Status:    "error",
		Message:   message,
		ErrorType: errorType,
	})
}

// SendError writes an error envelope with the general error type.
func SendError(c *fiber.Ctx, status int, message string) error {
	return SendErrorWithType(c, status, message, models.GeneralErrorType)
}
