package models

import "time"

// Payment provider constants used across payment-related models.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderMock   = "mock"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// PaymentAttempt tracks one checkout session from pending to a terminal
// completed/failed state. The pending -> completed transition is the single
// gate for applying the embedded grant: at most one ledger merge ever happens
// per external session id, however many confirmation paths race for it.
//
// The grant (amount, validity days) is captured at checkout-creation time so
// reconciliation never depends on re-deriving plan details later.
type PaymentAttempt struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	UserID                uint       `gorm:"not null;index" json:"user_id"`
	Provider              string     `gorm:"type:varchar(20);not null;index" json:"provider"`
	ExternalSessionID     string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"external_session_id"`
	PlanID                string     `gorm:"type:varchar(50);not null" json:"plan_id"`
	Amount                int        `gorm:"not null" json:"amount"`
	ValidityDays          int        `gorm:"not null;default:0" json:"validity_days"`
	PriceCents            int        `gorm:"not null;default:0" json:"price_cents"`
	Status                string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ExternalTransactionID string     `gorm:"type:varchar(191);default:''" json:"external_transaction_id"`
	CompletedAt           *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the attempt reached a final state.
func (p *PaymentAttempt) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}
