package payments

import (
	"time"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payment reconciliation
// engine. Attempt rows are only ever mutated here; the verification flow may
// read rows it did not create, but status transitions stay in this package.
type Repository interface {
	Create(attempt *models.PaymentAttempt) error
	GetByExternalSessionID(sessionID string) (*models.PaymentAttempt, error)
	// CompletePending transitions pending -> completed and sets the
	// external transaction id. False means no pending row matched.
	CompletePending(sessionID, transactionID string, now time.Time) (bool, error)
	// MarkFailed transitions pending -> failed.
	MarkFailed(sessionID string) (bool, error)
	// CreateCompleted inserts an attempt directly in completed state and
	// reports false when another writer inserted the session first.
	CreateCompleted(attempt *models.PaymentAttempt) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment attempt repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(attempt *models.PaymentAttempt) error {
	return r.db.Create(attempt).Error
}

func (r *gormRepository) GetByExternalSessionID(sessionID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.Where("external_session_id = ?", sessionID).First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// CompletePending is the pending -> completed gate both confirmation paths
// contend for. The status predicate makes the transition at-most-once:
// whichever path matches the pending row wins it, the loser affects zero rows
// and must not re-apply the grant.
func (r *gormRepository) CompletePending(sessionID, transactionID string, now time.Time) (bool, error) {
	tx := r.db.Model(&models.PaymentAttempt{}).
		Where("external_session_id = ? AND status = ?", sessionID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":                  models.PaymentStatusCompleted,
			"external_transaction_id": transactionID,
			"completed_at":            now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) MarkFailed(sessionID string) (bool, error) {
	tx := r.db.Model(&models.PaymentAttempt{}).
		Where("external_session_id = ? AND status = ?", sessionID, models.PaymentStatusPending).
		Update("status", models.PaymentStatusFailed)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// CreateCompleted covers notifications for sessions that never got a local
// pending row. ON CONFLICT DO NOTHING keeps the unique session index as the
// arbiter, so two racing inserts still grant once.
func (r *gormRepository) CreateCompleted(attempt *models.PaymentAttempt) (bool, error) {
	attempt.Status = models.PaymentStatusCompleted
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_session_id"}},
		DoNothing: true,
	}).Create(attempt)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
