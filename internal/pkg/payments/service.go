package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/credits"
)

// ErrUnknownPlan is returned for checkout requests against the catalog.
var ErrUnknownPlan = errors.New("unknown plan")

// Granter is the slice of the credits service the reconciliation engine
// needs. Grants go through it so snapshot caching stays consistent.
type Granter interface {
	ApplyGrant(ctx context.Context, userID uint, grant credits.Grant, now time.Time) (*models.UserLedger, error)
	GetBalance(ctx context.Context, userID uint, now time.Time) (*credits.BalanceSnapshot, error)
}

// CheckoutInfo is returned to the client after checkout creation.
type CheckoutInfo struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// VerifyResult is the outcome of the client-initiated verification fallback.
type VerifyResult struct {
	Success   bool       `json:"success"`
	Balance   int        `json:"balance,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Tier      string     `json:"tier,omitempty"`
}

// Service drives payment attempts through pending -> completed | failed and
// applies the captured grant exactly once per external session, however the
// confirmation arrives: asynchronous webhook, client verification poll, or
// both racing each other.
type Service struct {
	repo     Repository
	credits  Granter
	checkout CheckoutClient
}

// NewService creates a payment service from injected collaborators.
func NewService(repo Repository, granter Granter, checkout CheckoutClient) *Service {
	return &Service{repo: repo, credits: granter, checkout: checkout}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, granter Granter, checkout CheckoutClient) *Service {
	return NewService(NewRepository(db), granter, checkout)
}

// CreateCheckout starts a Stripe checkout for a catalog plan and records the
// pending attempt with the grant captured from the catalog. A failed local
// insert is tolerated: the webhook path recreates the row from session
// metadata.
func (s *Service) CreateCheckout(ctx context.Context, userID uint, planID string) (*CheckoutInfo, error) {
	plan, ok := PlanByID(planID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	info, err := s.checkout.CreateSession(ctx, userID, *plan)
	if err != nil {
		return nil, err
	}

	attempt := &models.PaymentAttempt{
		UserID:            userID,
		Provider:          models.PaymentProviderStripe,
		ExternalSessionID: info.SessionID,
		PlanID:            plan.ID,
		Amount:            plan.Amount,
		ValidityDays:      plan.ValidityDays,
		PriceCents:        plan.PriceCents,
		Status:            models.PaymentStatusPending,
	}
	if err := s.repo.Create(attempt); err != nil {
		log.Warnf("[Payments] pending attempt insert failed for session %s: %v (webhook will recreate)", info.SessionID, err)
	}

	return &CheckoutInfo{SessionID: info.SessionID, CheckoutURL: info.CheckoutURL}, nil
}

// MockCheckout is the legacy direct channel: no external processor, the
// attempt is recorded straight in completed state and the grant is PERMANENT
// (zero validity days, the one documented sentinel).
func (s *Service) MockCheckout(ctx context.Context, userID uint, planID string, now time.Time) (*credits.BalanceSnapshot, error) {
	plan, ok := PlanByID(planID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	attempt := &models.PaymentAttempt{
		UserID:            userID,
		Provider:          models.PaymentProviderMock,
		ExternalSessionID: "mock_" + uuid.New().String(),
		PlanID:            plan.ID,
		Amount:            plan.Amount,
		ValidityDays:      0,
		PriceCents:        plan.PriceCents,
		CompletedAt:       &now,
	}
	inserted, err := s.repo.CreateCompleted(attempt)
	if err != nil {
		return nil, err
	}
	if inserted {
		s.applyAttemptGrant(ctx, attempt, now)
	}
	return s.credits.GetBalance(ctx, userID, now)
}

// HandleCompletedSession converges on the at-most-once outcome for one
// session. Both confirmation paths call it: the webhook with a parsed,
// signature-verified SessionInfo, and VerifySession with ground truth fetched
// from the processor. Exactly one caller wins the pending -> completed
// transition and applies the grant; every other invocation is a no-op.
func (s *Service) HandleCompletedSession(ctx context.Context, info *SessionInfo, now time.Time) error {
	won, err := s.repo.CompletePending(info.SessionID, info.TransactionID, now)
	if err != nil {
		return err
	}
	if won {
		attempt, err := s.repo.GetByExternalSessionID(info.SessionID)
		if err != nil {
			// Transition landed but the row read back failed; fall
			// back to the notification's own grant.
			log.Errorf("[Payments] completed attempt read-back failed for session %s: %v", info.SessionID, err)
			attempt = s.attemptFromSession(info)
		}
		s.applyAttemptGrant(ctx, attempt, now)
		return nil
	}

	existing, err := s.repo.GetByExternalSessionID(info.SessionID)
	if err == nil {
		switch existing.Status {
		case models.PaymentStatusCompleted:
			// Duplicate notification; the winner already granted.
			return nil
		case models.PaymentStatusFailed:
			log.Warnf("[Payments] ignoring completion for failed session %s", info.SessionID)
			return nil
		default:
			// Pending reappeared between the CAS and this read; one
			// more attempt at the gate.
			won, err := s.repo.CompletePending(info.SessionID, info.TransactionID, now)
			if err != nil {
				return err
			}
			if won {
				s.applyAttemptGrant(ctx, existing, now)
			}
			return nil
		}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// No local row at all: the checkout-creation insert never made it.
	// Reconstruct the attempt from the notification's own metadata.
	attempt := s.attemptFromSession(info)
	inserted, err := s.repo.CreateCompleted(attempt)
	if err != nil {
		return err
	}
	if inserted {
		s.applyAttemptGrant(ctx, attempt, now)
	}
	return nil
}

// MarkSessionFailed moves an expired or abandoned session to its terminal
// failed state.
func (s *Service) MarkSessionFailed(sessionID string) error {
	_, err := s.repo.MarkFailed(sessionID)
	return err
}

// VerifySession is the client-initiated fallback for when the webhook is
// delayed or lost. It is safe to race against the webhook: both paths funnel
// through the same pending-gated transition.
func (s *Service) VerifySession(ctx context.Context, sessionID string, userID uint, now time.Time) (*VerifyResult, error) {
	attempt, err := s.repo.GetByExternalSessionID(sessionID)
	if err == nil {
		switch attempt.Status {
		case models.PaymentStatusCompleted:
			if attempt.UserID != userID {
				return &VerifyResult{Success: false}, nil
			}
			return s.successResult(ctx, userID, now)
		case models.PaymentStatusFailed:
			// Terminal; never resurrected.
			return &VerifyResult{Success: false}, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Pending or unknown locally: ask the processor for ground truth.
	info, err := s.checkout.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("payment verification unavailable: %w", err)
	}
	if !info.Paid {
		return &VerifyResult{Success: false}, nil
	}
	if info.UserID == 0 {
		info.UserID = userID
	}

	if err := s.HandleCompletedSession(ctx, info, now); err != nil {
		return nil, err
	}
	return s.successResult(ctx, userID, now)
}

func (s *Service) successResult(ctx context.Context, userID uint, now time.Time) (*VerifyResult, error) {
	snap, err := s.credits.GetBalance(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Success:   true,
		Balance:   snap.Balance,
		ExpiresAt: snap.ExpiresAt,
		Tier:      snap.Tier,
	}, nil
}

// applyAttemptGrant applies the grant of an attempt that just turned
// completed. A failure here is a completed-but-not-credited inconsistency:
// it is alert-logged for manual reconciliation, never retried, because a
// blind retry of a partially applied grant could double-credit.
func (s *Service) applyAttemptGrant(ctx context.Context, attempt *models.PaymentAttempt, now time.Time) {
	grant := credits.Grant{Amount: attempt.Amount, ValidityDays: attempt.ValidityDays}
	if _, err := s.credits.ApplyGrant(ctx, attempt.UserID, grant, now); err != nil {
		log.Errorf("[Payments] MANUAL RECONCILIATION NEEDED: session %s completed but grant apply failed for user %d (amount %d): %v",
			attempt.ExternalSessionID, attempt.UserID, attempt.Amount, err)
	}
}

func (s *Service) attemptFromSession(info *SessionInfo) *models.PaymentAttempt {
	return &models.PaymentAttempt{
		UserID:                info.UserID,
		Provider:              models.PaymentProviderStripe,
		ExternalSessionID:     info.SessionID,
		PlanID:                info.PlanID,
		Amount:                info.Grant.Amount,
		ValidityDays:          info.Grant.ValidityDays,
		ExternalTransactionID: info.TransactionID,
	}
}
