package credits

import (
	"errors"
	"time"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Every new ledger starts with one free generation.
const defaultStartingBalance = 1

// applyGrantMaxRetries bounds the optimistic-retry loop. Contention on one
// user's ledger is two or three writers at worst (a redemption plus a webhook
// plus a verify poll), so a handful of retries is plenty.
const applyGrantMaxRetries = 5

// ErrGrantConflict is returned when ApplyGrant keeps losing the version race.
var ErrGrantConflict = errors.New("ledger grant conflicted too many times")

// Repository provides DB operations used by the credits service. The ledger
// row is the single shared mutable resource; ApplyGrant and DecrementOne are
// its only mutation paths and both are guarded, so an unguarded
// read-modify-write of the balance cannot exist in this codebase.
type Repository interface {
	// GetOrCreateLedger returns the user's ledger, inserting the default
	// {balance: 1, no expiry, free tier} row on first access.
	GetOrCreateLedger(userID uint) (*models.UserLedger, error)
	// ApplyGrant merges a grant into the ledger under optimistic
	// concurrency and upgrades the tier to premium.
	ApplyGrant(userID uint, grant Grant, now time.Time) (*models.UserLedger, error)
	// DecrementOne atomically spends one live credit. It returns false
	// without mutating when the effective balance is zero or expired.
	DecrementOne(userID uint, now time.Time) (bool, error)

	GetCodeByValue(code string) (*models.RedemptionCode, error)
	// ClaimCode marks a code consumed, conditioned on it being unconsumed.
	// It returns false when a concurrent redeemer won the race.
	ClaimCode(codeID uint, userID uint, now time.Time) (bool, error)
	// ReleaseCode is the compensating action for a claim whose grant failed.
	ReleaseCode(codeID uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a credits repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// GetOrCreateLedger inserts with ON CONFLICT DO NOTHING so concurrent first
// reads cannot create duplicates; whoever loses simply re-reads the winner's
// row.
func (r *gormRepository) GetOrCreateLedger(userID uint) (*models.UserLedger, error) {
	var ledger models.UserLedger
	err := r.db.Where("user_id = ?", userID).First(&ledger).Error
	if err == nil {
		return &ledger, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := models.UserLedger{
		UserID:  userID,
		Balance: defaultStartingBalance,
		Tier:    models.TierFree,
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	if err := r.db.Where("user_id = ?", userID).First(&ledger).Error; err != nil {
		return nil, err
	}
	return &ledger, nil
}

// ApplyGrant reads, merges in memory, then writes conditioned on the version
// column being unchanged. A lost race re-reads and re-merges, so two grants
// landing together (redemption plus webhook) both count exactly once.
func (r *gormRepository) ApplyGrant(userID uint, grant Grant, now time.Time) (*models.UserLedger, error) {
	for attempt := 0; attempt < applyGrantMaxRetries; attempt++ {
		ledger, err := r.GetOrCreateLedger(userID)
		if err != nil {
			return nil, err
		}

		newBalance, newExpiresAt := MergeGrant(ledger.Balance, ledger.BalanceExpiresAt, grant, now)

		tx := r.db.Model(&models.UserLedger{}).
			Where("user_id = ? AND version = ?", userID, ledger.Version).
			Updates(map[string]interface{}{
				"balance":            newBalance,
				"balance_expires_at": newExpiresAt,
				"tier":               models.TierPremium,
				"version":            gorm.Expr("version + ?", 1),
			})
		if tx.Error != nil {
			return nil, tx.Error
		}
		if tx.RowsAffected == 0 {
			// Another grant or a decrement got in between; retry.
			continue
		}

		ledger.Balance = newBalance
		ledger.BalanceExpiresAt = newExpiresAt
		ledger.Tier = models.TierPremium
		ledger.Version++
		return ledger, nil
	}
	return nil, ErrGrantConflict
}

// DecrementOne spends one credit as a single conditional update so two
// concurrent generation requests can never both pass a separate check and
// push the balance negative.
func (r *gormRepository) DecrementOne(userID uint, now time.Time) (bool, error) {
	tx := r.db.Model(&models.UserLedger{}).
		Where("user_id = ? AND balance > 0 AND (balance_expires_at IS NULL OR balance_expires_at > ?)", userID, now).
		Updates(map[string]interface{}{
			"balance":                   gorm.Expr("balance - ?", 1),
			"lifetime_generation_count": gorm.Expr("lifetime_generation_count + ?", 1),
			"version":                   gorm.Expr("version + ?", 1),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetCodeByValue(code string) (*models.RedemptionCode, error) {
	var rc models.RedemptionCode
	err := r.db.Where("code = ?", code).First(&rc).Error
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

// ClaimCode flips consumed false -> true conditioned on the code still being
// unconsumed. The conditional update is the optimistic lock: whichever of two
// concurrent redeemers matches the row wins, the other sees zero rows.
func (r *gormRepository) ClaimCode(codeID uint, userID uint, now time.Time) (bool, error) {
	tx := r.db.Model(&models.RedemptionCode{}).
		Where("id = ? AND consumed = ?", codeID, false).
		Updates(map[string]interface{}{
			"consumed":    true,
			"consumed_by": userID,
			"consumed_at": now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ReleaseCode reverses a claim whose grant application failed. Best-effort;
// the service logs when this also fails.
func (r *gormRepository) ReleaseCode(codeID uint) error {
	return r.db.Model(&models.RedemptionCode{}).
		Where("id = ?", codeID).
		Updates(map[string]interface{}{
			"consumed":    false,
			"consumed_by": nil,
			"consumed_at": nil,
		}).Error
}
