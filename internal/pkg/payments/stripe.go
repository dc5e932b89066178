package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/credits"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/env"
)

// SessionInfo is the provider-neutral view of one checkout session as the
// reconciliation engine needs it: identity, payment ground truth, and the
// grant the session was sold with (carried in session metadata).
type SessionInfo struct {
	SessionID     string
	CheckoutURL   string
	TransactionID string
	Paid          bool
	UserID        uint
	PlanID        string
	Grant         credits.Grant
}

// CheckoutClient is the external payment processor surface the reconciliation
// engine depends on. The Stripe-backed implementation is below; tests swap in
// a fake.
type CheckoutClient interface {
	CreateSession(ctx context.Context, userID uint, plan Plan) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
}

type stripeClient struct {
	successURL string
	cancelURL  string
}

// NewStripeClientFromEnv configures the global Stripe key and returns a
// checkout client for it.
func NewStripeClientFromEnv() CheckoutClient {
	stripelib.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
	return &stripeClient{
		successURL: env.GetEnv("STRIPE_SUCCESS_URL", "http://localhost:4000/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		cancelURL:  env.GetEnv("STRIPE_CANCEL_URL", "http://localhost:4000/checkout/cancel"),
	}
}

func (c *stripeClient) CreateSession(ctx context.Context, userID uint, plan Plan) (*SessionInfo, error) {
	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModePayment)),
		SuccessURL: stripelib.String(c.successURL),
		CancelURL:  stripelib.String(c.cancelURL),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				PriceData: &stripelib.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripelib.String(string(stripelib.CurrencyUSD)),
					UnitAmount: stripelib.Int64(int64(plan.PriceCents)),
					ProductData: &stripelib.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripelib.String(plan.Name),
					},
				},
				Quantity: stripelib.Int64(1),
			},
		},
	}
	params.Context = ctx
	// The grant rides along in metadata so a notification can be
	// reconciled even when the local pending row never made it to disk.
	params.AddMetadata("user_id", strconv.FormatUint(uint64(userID), 10))
	params.AddMetadata("plan_id", plan.ID)
	params.AddMetadata("amount", strconv.Itoa(plan.Amount))
	params.AddMetadata("validity_days", strconv.Itoa(plan.ValidityDays))

	s, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &SessionInfo{
		SessionID:   s.ID,
		CheckoutURL: s.URL,
		UserID:      userID,
		PlanID:      plan.ID,
		Grant:       credits.Grant{Amount: plan.Amount, ValidityDays: plan.ValidityDays},
	}, nil
}

func (c *stripeClient) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	params := &stripelib.CheckoutSessionParams{}
	params.Context = ctx
	s, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return sessionInfoFromStripe(s), nil
}

func sessionInfoFromStripe(s *stripelib.CheckoutSession) *SessionInfo {
	info := &SessionInfo{
		SessionID: s.ID,
		Paid:      s.PaymentStatus == stripelib.CheckoutSessionPaymentStatusPaid,
	}
	if s.PaymentIntent != nil {
		info.TransactionID = s.PaymentIntent.ID
	}
	if s.Metadata != nil {
		info.PlanID = s.Metadata["plan_id"]
		if v, err := strconv.ParseUint(s.Metadata["user_id"], 10, 64); err == nil {
			info.UserID = uint(v)
		}
		if v, err := strconv.Atoi(s.Metadata["amount"]); err == nil {
			info.Grant.Amount = v
		}
		if v, err := strconv.Atoi(s.Metadata["validity_days"]); err == nil {
			info.Grant.ValidityDays = v
		}
	}
	return info
}

// SessionInfoFromEvent extracts the checkout session carried by a
// checkout.session.* webhook event.
func SessionInfoFromEvent(event *stripelib.Event) (*SessionInfo, error) {
	var s stripelib.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("parse checkout session from event: %w", err)
	}
	return sessionInfoFromStripe(&s), nil
}

// VerifyWebhook checks the Stripe signature on a raw webhook payload. Invalid
// signatures must be rejected before any state is touched.
func VerifyWebhook(payload []byte, signatureHeader, secret string) (*stripelib.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" || strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("missing webhook signature or secret")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid webhook signature: %w", err)
	}
	return &event, nil
}
