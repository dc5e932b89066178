package models

import "time"

const (
	TierFree    = "free"
	TierPremium = "premium"
)

// UserLedger is the single per-user credit record. All balance mutations go
// through the ledger repository's guarded operations; no other component
// writes balance or balance_expires_at directly.
type UserLedger struct {
	UserID                  uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Balance                 int        `gorm:"not null;default:0" json:"balance"`
	BalanceExpiresAt        *time.Time `gorm:"type:timestamp;default:null" json:"balance_expires_at,omitempty"`
	Tier                    string     `gorm:"type:varchar(20);not null;default:'free'" json:"tier"`
	LifetimeGenerationCount uint       `gorm:"not null;default:0" json:"lifetime_generation_count"`
	Version                 uint       `gorm:"not null;default:0" json:"-"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPremium reports whether the ledger has ever received a successful grant.
// Tier only upgrades, it never downgrades automatically.
func (l *UserLedger) IsPremium() bool {
	return l.Tier == TierPremium
}
