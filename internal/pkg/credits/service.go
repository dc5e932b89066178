package credits

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
)

// Service owns the credit ledger: it computes effective balances, redeems
// single-use codes and gates generation consumption. Payment channels apply
// their grants through it as well, so cache invalidation stays in one place.
type Service struct {
	repo  Repository
	cache SnapshotCache
}

// NewService creates a credits service from an injected repository. The cache
// may be nil, in which case every read hits the database.
func NewService(repo Repository, cache SnapshotCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// NewServiceFromDB creates a credits service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, cache SnapshotCache) *Service {
	return NewService(NewRepository(db), cache)
}

// GetBalance returns the user's effective balance snapshot for display and
// authorization. The snapshot is read-through cached; mutations invalidate.
func (s *Service) GetBalance(ctx context.Context, userID uint, now time.Time) (*BalanceSnapshot, error) {
	_ = ctx
	if s.cache != nil {
		if snap, ok := s.cache.Get(userID); ok {
			// The cached raw values still need the expiry projection:
			// a snapshot cached just before expiry must read as zero
			// just after it.
			snap.Balance = EffectiveBalance(snap.Balance, snap.ExpiresAt, now)
			return snap, nil
		}
	}

	ledger, err := s.repo.GetOrCreateLedger(userID)
	if err != nil {
		return nil, err
	}
	snap := snapshotOf(ledger, now)
	if s.cache != nil {
		s.cache.Set(userID, &BalanceSnapshot{Balance: ledger.Balance, ExpiresAt: ledger.BalanceExpiresAt, Tier: ledger.Tier})
	}
	return snap, nil
}

// ApplyGrant merges a grant into the user's ledger and invalidates the
// snapshot cache. All three grant channels funnel through here.
func (s *Service) ApplyGrant(ctx context.Context, userID uint, grant Grant, now time.Time) (*models.UserLedger, error) {
	_ = ctx
	if grant.Amount <= 0 {
		return nil, errors.New("grant amount must be positive")
	}
	ledger, err := s.repo.ApplyGrant(userID, grant, now)
	if err != nil {
		return nil, err
	}
	s.invalidate(userID)
	return ledger, nil
}

// Redeem exchanges a single-use code for its grant. Expected business
// outcomes surface as the package's sentinel errors; anything else is an
// infrastructure fault.
//
// The claim happens before the grant on purpose: a user retrying after a
// transient grant failure must not be credited twice, at the price of the
// compensating release below.
func (s *Service) Redeem(ctx context.Context, userID uint, rawCode string, now time.Time) (*RedeemResult, error) {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if code == "" {
		return nil, ErrInvalidCode
	}

	rc, err := s.repo.GetCodeByValue(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	if rc.Consumed {
		return nil, ErrCodeAlreadyUsed
	}
	if rc.IsExpired(now) {
		return nil, ErrCodeExpired
	}

	claimed, err := s.repo.ClaimCode(rc.ID, userID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost the claim race to a concurrent redeemer. Do not retry.
		return nil, ErrCodeAlreadyUsed
	}

	grant := Grant{Amount: rc.Amount, ValidityDays: rc.ValidityDays}
	ledger, err := s.ApplyGrant(ctx, userID, grant, now)
	if err != nil {
		log.Errorf("[Credits] grant apply failed for code %s (user %d): %v", rc.Code, userID, err)
		if relErr := s.repo.ReleaseCode(rc.ID); relErr != nil {
			// Code is consumed but the user was never credited. Needs
			// an operator: do not swallow this state.
			log.Errorf("[Credits] MANUAL RECONCILIATION NEEDED: code %s claimed by user %d but grant failed and release failed: %v", rc.Code, userID, relErr)
		}
		return nil, ErrRedeemFailed
	}

	return &RedeemResult{
		NewBalance:    EffectiveBalance(ledger.Balance, ledger.BalanceExpiresAt, now),
		NewExpiresAt:  ledger.BalanceExpiresAt,
		AmountGranted: rc.Amount,
	}, nil
}

// CanGenerate reports whether the user currently holds a live credit. This is
// a fast pre-check only; Consume makes the authoritative decision.
func (s *Service) CanGenerate(ctx context.Context, userID uint, now time.Time) (bool, error) {
	snap, err := s.GetBalance(ctx, userID, now)
	if err != nil {
		return false, err
	}
	return snap.Balance > 0, nil
}

// Consume spends one credit after a successful generation. False means the
// balance was exhausted or expired; nothing was mutated.
func (s *Service) Consume(ctx context.Context, userID uint, now time.Time) (bool, error) {
	_ = ctx
	ok, err := s.repo.DecrementOne(userID, now)
	if err != nil {
		return false, err
	}
	if ok {
		s.invalidate(userID)
	}
	return ok, nil
}

func (s *Service) invalidate(userID uint) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}

func snapshotOf(ledger *models.UserLedger, now time.Time) *BalanceSnapshot {
	return &BalanceSnapshot{
		Balance:   EffectiveBalance(ledger.Balance, ledger.BalanceExpiresAt, now),
		ExpiresAt: ledger.BalanceExpiresAt,
		Tier:      ledger.Tier,
	}
}
