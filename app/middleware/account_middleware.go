package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"wablast/app/dto"
)

// AccountContext resolves the account the request acts for. Authentication
// happens at the edge gateway, which injects the verified account ID in the
// X-Account-ID header.
func AccountContext() fiber.Handler {
	return func(c fiber.Ctx) error {
		raw := c.Get("X-Account-ID")
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Account ID header is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_ACCOUNT_ID",
				},
			})
		}

		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Account ID header is invalid",
				Error: dto.ErrorDetail{
					Code: "INVALID_ACCOUNT_ID",
				},
			})
		}

		c.Locals("account_id", uint(id))
		return c.Next()
	}
}
