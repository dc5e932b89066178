package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/generation"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/usercontext"
)

type generateRequest struct {
	Prompt   string `json:"prompt"`
	IsPublic bool   `json:"is_public"`
}

// HandleGenerateCover generates a red envelope cover from a prompt. One
// credit is consumed per successful generation; a provider failure costs
// nothing.
func HandleGenerateCover(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
	}

	cover, err := generationService.Generate(c.Context(), userCtx.UserID, req.Prompt, req.IsPublic, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrEmptyPrompt):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty_prompt", "message": "Prompt must not be empty"})
		case errors.Is(err, generation.ErrNoCredits):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "no_credits", "message": "No credits left, redeem a code or buy a pack"})
		default:
			log.Errorf("[Generate] Generation failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "generation_failed", "message": "Generation failed, no credit was consumed"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(coverResponse(cover))
}

// HandleGetMyCovers lists the authenticated user's generated covers
func HandleGetMyCovers(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	offset, limit := getPagination(c)
	covers, err := generationService.ListByUser(userCtx.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load covers"})
	}

	out := make([]fiber.Map, 0, len(covers))
	for i := range covers {
		out = append(out, coverResponse(&covers[i]))
	}
	return c.JSON(fiber.Map{"covers": out})
}
