package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/env"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/payments"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/usercontext"
)

type checkoutRequest struct {
	PlanID string `json:"plan_id"`
}

// HandleListPlans returns the purchasable credit pack catalog
func HandleListPlans(c *fiber.Ctx) error {
	plans := payments.Plans()
	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		out = append(out, fiber.Map{
			"id":            p.ID,
			"name":          p.Name,
			"amount":        p.Amount,
			"validity_days": p.ValidityDays,
			"price_cents":   p.PriceCents,
		})
	}
	return c.JSON(fiber.Map{"plans": out})
}

// HandleCreateCheckout starts a hosted checkout session for a credit pack
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
	}

	info, err := paymentsService.CreateCheckout(c.Context(), userCtx.UserID, req.PlanID)
	if err != nil {
		if errors.Is(err, payments.ErrUnknownPlan) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_plan", "message": "Unknown plan"})
		}
		log.Errorf("[Payment] Failed to create checkout for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed", "message": "Could not start checkout"})
	}

	return c.JSON(fiber.Map{
		"session_id":   info.SessionID,
		"checkout_url": info.CheckoutURL,
	})
}

// HandleMockCheckout credits a pack immediately without an external
// provider. Only available when PAYMENT_MOCK_ENABLED is set; used in
// development and for markets without checkout coverage.
func HandleMockCheckout(c *fiber.Ctx) error {
	if env.GetEnv("PAYMENT_MOCK_ENABLED", "false") != "true" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Not found"})
	}

	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
	}

	snapshot, err := paymentsService.MockCheckout(c.Context(), userCtx.UserID, req.PlanID, time.Now())
	if err != nil {
		if errors.Is(err, payments.ErrUnknownPlan) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_plan", "message": "Unknown plan"})
		}
		log.Errorf("[Payment] Mock checkout failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Mock checkout failed"})
	}

	return c.JSON(fiber.Map{
		"balance":    snapshot.Balance,
		"expires_at": formatTimePtr(snapshot.ExpiresAt),
		"tier":       snapshot.Tier,
	})
}

// HandleVerifySession is the client-initiated fallback for webhook delivery
// gaps: the success page polls it with the session ID from the redirect URL.
func HandleVerifySession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Missing session_id"})
	}

	result, err := paymentsService.VerifySession(c.Context(), sessionID, userCtx.UserID, time.Now())
	if err != nil {
		log.Errorf("[Payment] Verify failed for session %s: %v", sessionID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "verify_failed", "message": "Could not verify payment"})
	}

	return c.JSON(result)
}

// HandleStripeWebhook processes asynchronous payment confirmations. The
// signature check runs against the raw body before anything else; a bad
// signature is rejected without touching state. Processing errors after the
// completed transition still return 200 so Stripe does not redeliver an
// event whose grant side effect may already have run.
func HandleStripeWebhook(c *fiber.Ctx) error {
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")
	event, err := payments.VerifyWebhook(c.Body(), c.Get("Stripe-Signature"), secret)
	if err != nil {
		log.Warnf("[Payment] Rejected webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature", "message": "Webhook signature verification failed"})
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		info, err := payments.SessionInfoFromEvent(event)
		if err != nil {
			log.Errorf("[Payment] Malformed webhook event %s: %v", event.ID, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event", "message": "Malformed event payload"})
		}
		if err := paymentsService.HandleCompletedSession(c.Context(), info, time.Now()); err != nil {
			log.Errorf("[Payment] Failed to process completed session %s: %v", info.SessionID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed", "message": "Failed to process event"})
		}
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		info, err := payments.SessionInfoFromEvent(event)
		if err != nil {
			log.Errorf("[Payment] Malformed webhook event %s: %v", event.ID, err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event", "message": "Malformed event payload"})
		}
		if err := paymentsService.MarkSessionFailed(info.SessionID); err != nil {
			log.Warnf("[Payment] Failed to mark session %s failed: %v", info.SessionID, err)
		}
	default:
		log.Debugf("[Payment] Ignoring webhook event type %s", event.Type)
	}

	return c.JSON(fiber.Map{"received": true})
}
