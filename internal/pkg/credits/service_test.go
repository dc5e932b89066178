package credits

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
)

// fakeRepository mirrors the guarded semantics of the GORM repository in
// memory: version-checked grant writes, conditional decrements and a
// claim-once code table. The mutex makes each operation atomic the way a
// single SQL statement is.
type fakeRepository struct {
	mu      sync.Mutex
	ledgers map[uint]*models.UserLedger
	codes   map[string]*models.RedemptionCode

	failGrants   bool
	failReleases bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		ledgers: make(map[uint]*models.UserLedger),
		codes:   make(map[string]*models.RedemptionCode),
	}
}

func (f *fakeRepository) addCode(code string, amount, validityDays int, expiresAt *time.Time) *models.RedemptionCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc := &models.RedemptionCode{
		ID:           uint(len(f.codes) + 1),
		Code:         code,
		Amount:       amount,
		ValidityDays: validityDays,
		ExpiresAt:    expiresAt,
	}
	f.codes[code] = rc
	return rc
}

func (f *fakeRepository) GetOrCreateLedger(userID uint) (*models.UserLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreateLocked(userID), nil
}

func (f *fakeRepository) getOrCreateLocked(userID uint) *models.UserLedger {
	if l, ok := f.ledgers[userID]; ok {
		return l
	}
	l := &models.UserLedger{
		UserID:  userID,
		Balance: defaultStartingBalance,
		Tier:    models.TierFree,
	}
	f.ledgers[userID] = l
	return l
}

func (f *fakeRepository) ApplyGrant(userID uint, grant Grant, now time.Time) (*models.UserLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGrants {
		return nil, assert.AnError
	}
	l := f.getOrCreateLocked(userID)
	l.Balance, l.BalanceExpiresAt = MergeGrant(l.Balance, l.BalanceExpiresAt, grant, now)
	l.Tier = models.TierPremium
	l.Version++
	copied := *l
	return &copied, nil
}

func (f *fakeRepository) DecrementOne(userID uint, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.ledgers[userID]
	if !ok {
		return false, nil
	}
	if l.Balance <= 0 {
		return false, nil
	}
	if l.BalanceExpiresAt != nil && !l.BalanceExpiresAt.After(now) {
		return false, nil
	}
	l.Balance--
	l.LifetimeGenerationCount++
	l.Version++
	return true, nil
}

func (f *fakeRepository) GetCodeByValue(code string) (*models.RedemptionCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.codes[code]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *rc
	return &copied, nil
}

func (f *fakeRepository) ClaimCode(codeID uint, userID uint, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rc := range f.codes {
		if rc.ID != codeID {
			continue
		}
		if rc.Consumed {
			return false, nil
		}
		rc.Consumed = true
		rc.ConsumedBy = &userID
		rc.ConsumedAt = &now
		return true, nil
	}
	return false, nil
}

func (f *fakeRepository) ReleaseCode(codeID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReleases {
		return assert.AnError
	}
	for _, rc := range f.codes {
		if rc.ID == codeID {
			rc.Consumed = false
			rc.ConsumedBy = nil
			rc.ConsumedAt = nil
			return nil
		}
	}
	return nil
}

func TestGetBalance_SeedsStartingCredit(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	now := time.Now()

	snap, err := svc.GetBalance(context.Background(), 1, now)
	assert.NoError(t, err)
	assert.Equal(t, 1, snap.Balance)
	assert.Nil(t, snap.ExpiresAt)
	assert.Equal(t, models.TierFree, snap.Tier)
}

func TestGetBalance_ExpiredBalanceReadsZero(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	now := time.Now()

	_, err := svc.ApplyGrant(context.Background(), 1, Grant{Amount: 10, ValidityDays: 30}, now)
	assert.NoError(t, err)

	later := now.AddDate(0, 0, 31)
	snap, err := svc.GetBalance(context.Background(), 1, later)
	assert.NoError(t, err)
	assert.Equal(t, 0, snap.Balance)
}

func TestApplyGrant_RejectsNonPositiveAmount(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)

	_, err := svc.ApplyGrant(context.Background(), 1, Grant{Amount: 0}, time.Now())
	assert.Error(t, err)
	_, err = svc.ApplyGrant(context.Background(), 1, Grant{Amount: -5}, time.Now())
	assert.Error(t, err)
}

func TestApplyGrant_UpgradesTier(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	now := time.Now()

	ledger, err := svc.ApplyGrant(context.Background(), 1, Grant{Amount: 10, ValidityDays: 30}, now)
	assert.NoError(t, err)
	assert.Equal(t, models.TierPremium, ledger.Tier)
}

func TestRedeem_Success(t *testing.T) {
	repo := newFakeRepository()
	repo.addCode("NEWYEAR2026", 30, 90, nil)
	svc := NewService(repo, nil)
	now := time.Now()

	result, err := svc.Redeem(context.Background(), 7, "newyear2026", now)
	assert.NoError(t, err)
	assert.Equal(t, 30, result.AmountGranted)
	// The live permanent starting credit keeps the merged balance permanent
	assert.Equal(t, 31, result.NewBalance)
	assert.Nil(t, result.NewExpiresAt)
}

func TestRedeem_CodeNotFound(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)

	_, err := svc.Redeem(context.Background(), 1, "NOPE", time.Now())
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRedeem_BlankCode(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)

	_, err := svc.Redeem(context.Background(), 1, "   ", time.Now())
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestRedeem_AlreadyUsed(t *testing.T) {
	repo := newFakeRepository()
	repo.addCode("ONCE", 5, 0, nil)
	svc := NewService(repo, nil)
	now := time.Now()

	_, err := svc.Redeem(context.Background(), 1, "ONCE", now)
	assert.NoError(t, err)

	_, err = svc.Redeem(context.Background(), 2, "ONCE", now)
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
}

func TestRedeem_ExpiredCode(t *testing.T) {
	repo := newFakeRepository()
	now := time.Now()
	past := now.Add(-time.Hour)
	repo.addCode("OLD", 5, 0, &past)
	svc := NewService(repo, nil)

	_, err := svc.Redeem(context.Background(), 1, "OLD", now)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestRedeem_GrantFailureReleasesCode(t *testing.T) {
	repo := newFakeRepository()
	rc := repo.addCode("FLAKY", 5, 0, nil)
	svc := NewService(repo, nil)
	now := time.Now()

	repo.failGrants = true
	_, err := svc.Redeem(context.Background(), 1, "FLAKY", now)
	assert.ErrorIs(t, err, ErrRedeemFailed)

	// The compensating release makes the code usable again
	repo.failGrants = false
	assert.False(t, repo.codes[rc.Code].Consumed)
	result, err := svc.Redeem(context.Background(), 1, "FLAKY", now)
	assert.NoError(t, err)
	assert.Equal(t, 5, result.AmountGranted)
}

func TestRedeem_GrantAndReleaseBothFailLeavesCodeClaimed(t *testing.T) {
	repo := newFakeRepository()
	rc := repo.addCode("STUCK", 5, 0, nil)
	svc := NewService(repo, nil)
	now := time.Now()

	// When the compensating release fails too, the code stays claimed and
	// the caller only sees the redeem failure; untangling it is a manual
	// reconciliation job, not something a retry may paper over.
	repo.failGrants = true
	repo.failReleases = true
	_, err := svc.Redeem(context.Background(), 1, "STUCK", now)
	assert.ErrorIs(t, err, ErrRedeemFailed)
	assert.True(t, repo.codes[rc.Code].Consumed)

	// Even once the store recovers, the claimed code cannot be redeemed
	// again and no credits ever materialized from it.
	repo.failGrants = false
	repo.failReleases = false
	_, err = svc.Redeem(context.Background(), 1, "STUCK", now)
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)

	snapshot, err := svc.GetBalance(context.Background(), 1, now)
	assert.NoError(t, err)
	assert.Equal(t, defaultStartingBalance, snapshot.Balance)
}

func TestRedeem_ConcurrentRedeemersCreditAtMostOnce(t *testing.T) {
	repo := newFakeRepository()
	repo.addCode("RACE", 50, 0, nil)
	svc := NewService(repo, nil)
	now := time.Now()

	const redeemers = 20
	var wg sync.WaitGroup
	successes := make(chan *RedeemResult, redeemers)
	failures := make(chan error, redeemers)

	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			result, err := svc.Redeem(context.Background(), userID, "RACE", now)
			if err != nil {
				failures <- err
				return
			}
			successes <- result
		}(uint(i + 1))
	}
	wg.Wait()
	close(successes)
	close(failures)

	assert.Len(t, successes, 1)
	for err := range failures {
		assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
	}
}

func TestConsume_NeverGoesNegative(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	now := time.Now()

	_, err := svc.ApplyGrant(context.Background(), 1, Grant{Amount: 4, ValidityDays: 0}, now)
	assert.NoError(t, err)
	// Starting credit + grant = 5 live credits

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	spent := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Consume(context.Background(), 1, now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				spent++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, spent)
	snap, err := svc.GetBalance(context.Background(), 1, now)
	assert.NoError(t, err)
	assert.Equal(t, 0, snap.Balance)
}

func TestConsume_ExpiredBalanceIsNotSpendable(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, nil)
	now := time.Now()

	_, err := svc.ApplyGrant(context.Background(), 1, Grant{Amount: 10, ValidityDays: 7}, now)
	assert.NoError(t, err)

	later := now.AddDate(0, 0, 8)
	ok, err := svc.Consume(context.Background(), 1, later)
	assert.NoError(t, err)
	assert.False(t, ok)
}

// Walks a user through the whole lifecycle: signup credit, spending it,
// redeeming a timed code, expiry, and a permanent top-up replacing the dead
// balance.
func TestLedgerLifecycle(t *testing.T) {
	repo := newFakeRepository()
	repo.addCode("WELCOME", 10, 30, nil)
	svc := NewService(repo, nil)
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	// Signup credit
	snap, err := svc.GetBalance(ctx, 1, now)
	assert.NoError(t, err)
	assert.Equal(t, 1, snap.Balance)

	// Spend it
	ok, err := svc.Consume(ctx, 1, now)
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.CanGenerate(ctx, 1, now)
	assert.NoError(t, err)
	assert.False(t, ok)

	// Redeem a 30-day code
	result, err := svc.Redeem(ctx, 1, "WELCOME", now)
	assert.NoError(t, err)
	assert.Equal(t, 10, result.NewBalance)

	// Spend some, then let the rest expire
	for i := 0; i < 3; i++ {
		ok, err := svc.Consume(ctx, 1, now)
		assert.NoError(t, err)
		assert.True(t, ok)
	}
	afterExpiry := now.AddDate(0, 0, 31)
	snap, err = svc.GetBalance(ctx, 1, afterExpiry)
	assert.NoError(t, err)
	assert.Equal(t, 0, snap.Balance)

	// A permanent grant replaces the dead balance outright
	ledger, err := svc.ApplyGrant(ctx, 1, Grant{Amount: 100, ValidityDays: 0}, afterExpiry)
	assert.NoError(t, err)
	assert.Equal(t, 100, ledger.Balance)
	assert.Nil(t, ledger.BalanceExpiresAt)
	assert.Equal(t, models.TierPremium, ledger.Tier)
}
