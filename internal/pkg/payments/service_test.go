package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/credits"
)

// fakeAttemptRepo mirrors the conditional-update semantics of the GORM
// repository: pending-gated transitions and insert-once on the session id.
type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts map[string]*models.PaymentAttempt
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[string]*models.PaymentAttempt)}
}

func (f *fakeAttemptRepo) Create(attempt *models.PaymentAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attempts[attempt.ExternalSessionID]; ok {
		return fmt.Errorf("duplicate session %s", attempt.ExternalSessionID)
	}
	if attempt.Status == "" {
		attempt.Status = models.PaymentStatusPending
	}
	copied := *attempt
	f.attempts[attempt.ExternalSessionID] = &copied
	return nil
}

func (f *fakeAttemptRepo) GetByExternalSessionID(sessionID string) (*models.PaymentAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[sessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAttemptRepo) CompletePending(sessionID, transactionID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[sessionID]
	if !ok || a.Status != models.PaymentStatusPending {
		return false, nil
	}
	a.Status = models.PaymentStatusCompleted
	a.ExternalTransactionID = transactionID
	a.CompletedAt = &now
	return true, nil
}

func (f *fakeAttemptRepo) MarkFailed(sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[sessionID]
	if !ok || a.Status != models.PaymentStatusPending {
		return false, nil
	}
	a.Status = models.PaymentStatusFailed
	return true, nil
}

func (f *fakeAttemptRepo) CreateCompleted(attempt *models.PaymentAttempt) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt.Status = models.PaymentStatusCompleted
	if _, ok := f.attempts[attempt.ExternalSessionID]; ok {
		return false, nil
	}
	copied := *attempt
	f.attempts[attempt.ExternalSessionID] = &copied
	return true, nil
}

// fakeGranter counts grant applications per user; the at-most-once tests
// hang off these counts.
type fakeGranter struct {
	mu         sync.Mutex
	grants     map[uint][]credits.Grant
	balance    map[uint]int
	failGrants bool
}

func newFakeGranter() *fakeGranter {
	return &fakeGranter{
		grants:  make(map[uint][]credits.Grant),
		balance: make(map[uint]int),
	}
}

func (f *fakeGranter) ApplyGrant(ctx context.Context, userID uint, grant credits.Grant, now time.Time) (*models.UserLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGrants {
		return nil, assert.AnError
	}
	f.grants[userID] = append(f.grants[userID], grant)
	f.balance[userID] += grant.Amount
	return &models.UserLedger{
		UserID:           userID,
		Balance:          f.balance[userID],
		BalanceExpiresAt: credits.ExpiryFrom(now, grant.ValidityDays),
		Tier:             models.TierPremium,
	}, nil
}

func (f *fakeGranter) GetBalance(ctx context.Context, userID uint, now time.Time) (*credits.BalanceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &credits.BalanceSnapshot{Balance: f.balance[userID], Tier: models.TierPremium}, nil
}

func (f *fakeGranter) grantCount(userID uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.grants[userID])
}

// fakeCheckout returns canned sessions keyed by session id.
type fakeCheckout struct {
	mu       sync.Mutex
	sessions map[string]*SessionInfo
	nextID   int
}

func newFakeCheckout() *fakeCheckout {
	return &fakeCheckout{sessions: make(map[string]*SessionInfo)}
}

func (f *fakeCheckout) CreateSession(ctx context.Context, userID uint, plan Plan) (*SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	info := &SessionInfo{
		SessionID:   fmt.Sprintf("cs_test_%d", f.nextID),
		CheckoutURL: fmt.Sprintf("https://checkout.example/%d", f.nextID),
		UserID:      userID,
		PlanID:      plan.ID,
		Grant:       credits.Grant{Amount: plan.Amount, ValidityDays: plan.ValidityDays},
	}
	f.sessions[info.SessionID] = info
	return info, nil
}

func (f *fakeCheckout) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %s", sessionID)
	}
	copied := *info
	return &copied, nil
}

func (f *fakeCheckout) markPaid(sessionID, transactionID string) *SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := f.sessions[sessionID]
	info.Paid = true
	info.TransactionID = transactionID
	copied := *info
	return &copied
}

func newTestService() (*Service, *fakeAttemptRepo, *fakeGranter, *fakeCheckout) {
	repo := newFakeAttemptRepo()
	granter := newFakeGranter()
	checkout := newFakeCheckout()
	return NewService(repo, granter, checkout), repo, granter, checkout
}

func TestCreateCheckout_RecordsPendingAttempt(t *testing.T) {
	svc, repo, _, _ := newTestService()

	info, err := svc.CreateCheckout(context.Background(), 1, "pack_starter")
	assert.NoError(t, err)
	assert.NotEmpty(t, info.SessionID)
	assert.NotEmpty(t, info.CheckoutURL)

	attempt, err := repo.GetByExternalSessionID(info.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, attempt.Status)
	assert.Equal(t, 10, attempt.Amount)
	assert.Equal(t, 30, attempt.ValidityDays)
}

func TestCreateCheckout_UnknownPlan(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.CreateCheckout(context.Background(), 1, "pack_bogus")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestMockCheckout_GrantsPermanently(t *testing.T) {
	svc, repo, granter, _ := newTestService()
	now := time.Now()

	snap, err := svc.MockCheckout(context.Background(), 5, "pack_standard", now)
	assert.NoError(t, err)
	assert.Equal(t, 30, snap.Balance)

	assert.Equal(t, 1, granter.grantCount(5))
	assert.Equal(t, 0, granter.grants[5][0].ValidityDays)

	// The attempt lands directly in completed state
	var attempt *models.PaymentAttempt
	for _, a := range repo.attempts {
		attempt = a
	}
	assert.NotNil(t, attempt)
	assert.Equal(t, models.PaymentStatusCompleted, attempt.Status)
	assert.Equal(t, models.PaymentProviderMock, attempt.Provider)
}

func TestWebhookThenVerify_GrantsOnce(t *testing.T) {
	svc, _, granter, checkout := newTestService()
	ctx := context.Background()
	now := time.Now()

	info, err := svc.CreateCheckout(ctx, 1, "pack_starter")
	assert.NoError(t, err)
	paid := checkout.markPaid(info.SessionID, "pi_123")

	// Webhook first
	assert.NoError(t, svc.HandleCompletedSession(ctx, paid, now))
	assert.Equal(t, 1, granter.grantCount(1))

	// Verify poll afterwards must not re-grant
	result, err := svc.VerifySession(ctx, info.SessionID, 1, now)
	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, granter.grantCount(1))
}

func TestGrantFailureKeepsAttemptCompletedWithoutRetry(t *testing.T) {
	svc, repo, granter, checkout := newTestService()
	ctx := context.Background()
	now := time.Now()

	info, err := svc.CreateCheckout(ctx, 1, "pack_starter")
	assert.NoError(t, err)
	paid := checkout.markPaid(info.SessionID, "pi_fail")

	// The grant fails after the completed transition. The webhook handler
	// swallows it so the provider gets its 200 and stops redelivering;
	// the inconsistency is an operator's job, not a retry's.
	granter.failGrants = true
	assert.NoError(t, svc.HandleCompletedSession(ctx, paid, now))
	assert.Equal(t, 0, granter.grantCount(1))

	attempt, err := repo.GetByExternalSessionID(info.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, attempt.Status)

	// A redelivered notification finds the attempt already completed and
	// must not re-run the grant, even with the store healthy again.
	granter.failGrants = false
	assert.NoError(t, svc.HandleCompletedSession(ctx, paid, now))
	assert.Equal(t, 0, granter.grantCount(1))

	attempt, err = repo.GetByExternalSessionID(info.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, attempt.Status)
}

func TestVerifyThenWebhook_GrantsOnce(t *testing.T) {
	svc, _, granter, checkout := newTestService()
	ctx := context.Background()
	now := time.Now()

	info, err := svc.CreateCheckout(ctx, 1, "pack_starter")
	assert.NoError(t, err)
	paid := checkout.markPaid(info.SessionID, "pi_123")

	// Verify poll first
	result, err := svc.VerifySession(ctx, info.SessionID, 1, now)
	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, granter.grantCount(1))

	// Webhook arrives late
	assert.NoError(t, svc.HandleCompletedSession(ctx, paid, now))
	assert.Equal(t, 1, granter.grantCount(1))
}

func TestConcurrentConfirmations_GrantOnce(t *testing.T) {
	svc, _, granter, checkout := newTestService()
	ctx := context.Background()
	now := time.Now()

	info, err := svc.CreateCheckout(ctx, 1, "pack_festival")
	assert.NoError(t, err)
	paid := checkout.markPaid(info.SessionID, "pi_777")

	// A webhook, its redelivery, and two verify polls all race
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = svc.HandleCompletedSession(ctx, paid, now)
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.VerifySession(ctx, info.SessionID, 1, now)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granter.grantCount(1))
}

func TestWebhookWithoutLocalRow_RecreatesFromMetadata(t *testing.T) {
	svc, repo, granter, _ := newTestService()
	ctx := context.Background()
	now := time.Now()

	// Notification for a session whose pending insert never happened
	info := &SessionInfo{
		SessionID:     "cs_lost_row",
		TransactionID: "pi_lost",
		Paid:          true,
		UserID:        9,
		PlanID:        "pack_starter",
		Grant:         credits.Grant{Amount: 10, ValidityDays: 30},
	}
	assert.NoError(t, svc.HandleCompletedSession(ctx, info, now))
	assert.Equal(t, 1, granter.grantCount(9))

	attempt, err := repo.GetByExternalSessionID("cs_lost_row")
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, attempt.Status)
	assert.Equal(t, 10, attempt.Amount)

	// Redelivery of the same notification is a no-op
	assert.NoError(t, svc.HandleCompletedSession(ctx, info, now))
	assert.Equal(t, 1, granter.grantCount(9))
}

func TestFailedSessionIsNeverResurrected(t *testing.T) {
	svc, _, granter, checkout := newTestService()
	ctx := context.Background()
	now := time.Now()

	info, err := svc.CreateCheckout(ctx, 1, "pack_starter")
	assert.NoError(t, err)

	assert.NoError(t, svc.MarkSessionFailed(info.SessionID))

	// A late completion notification for the failed session changes nothing
	paid := checkout.markPaid(info.SessionID, "pi_late")
	assert.NoError(t, svc.HandleCompletedSession(ctx, paid, now))
	assert.Equal(t, 0, granter.grantCount(1))

	result, err := svc.VerifySession(ctx, info.SessionID, 1, now)
	assert.NoError(t, err)
	assert.False(t, result.Success)
}

func TestVerifySession_UnpaidStaysPending(t *testing.T) {
	svc, repo, granter, _ := newTestService()
	ctx := context.Background()
	now := time.Now()

	info, err := svc.CreateCheckout(ctx, 1, "pack_starter")
	assert.NoError(t, err)

	// Session exists at the processor but the user never paid
	result, err := svc.VerifySession(ctx, info.SessionID, 1, now)
	assert.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 0, granter.grantCount(1))

	attempt, err := repo.GetByExternalSessionID(info.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, attempt.Status)
}

func TestVerifySession_WrongOwner(t *testing.T) {
	svc, _, _, checkout := newTestService()
	ctx := context.Background()
	now := time.Now()

	info, err := svc.CreateCheckout(ctx, 1, "pack_starter")
	assert.NoError(t, err)
	paid := checkout.markPaid(info.SessionID, "pi_123")
	assert.NoError(t, svc.HandleCompletedSession(ctx, paid, now))

	// Another user polling with the same session id gets no success
	result, err := svc.VerifySession(ctx, info.SessionID, 2, now)
	assert.NoError(t, err)
	assert.False(t, result.Success)
}
