package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/credits"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/usercontext"
)

type redeemRequest struct {
	Code string `json:"code"`
}

// HandleGetBalance returns the effective credit balance for the current user
func HandleGetBalance(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	snapshot, err := creditsService.GetBalance(c.Context(), userCtx.UserID, time.Now())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load balance"})
	}

	return c.JSON(fiber.Map{
		"balance":    snapshot.Balance,
		"expires_at": formatTimePtr(snapshot.ExpiresAt),
		"tier":       snapshot.Tier,
	})
}

// HandleRedeem consumes a redemption code and credits the current user.
// Business outcomes map to enumerated error codes so clients can show a
// specific message per case.
func HandleRedeem(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
	}

	result, err := creditsService.Redeem(c.Context(), userCtx.UserID, req.Code, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrInvalidCode):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_code", "message": "The code format is not valid"})
		case errors.Is(err, credits.ErrCodeNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "code_not_found", "message": "This code does not exist"})
		case errors.Is(err, credits.ErrCodeAlreadyUsed):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "code_already_used", "message": "This code has already been redeemed"})
		case errors.Is(err, credits.ErrCodeExpired):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "code_expired", "message": "This code has expired"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "redeem_failed", "message": "Redemption failed, please try again"})
		}
	}

	return c.JSON(fiber.Map{
		"amount_granted": result.AmountGranted,
		"balance":        result.NewBalance,
		"expires_at":     formatTimePtr(result.NewExpiresAt),
	})
}
