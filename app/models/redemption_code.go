package models

import "time"

// RedemptionCode is a single-use token exchangeable for a fixed credit grant.
// Codes are created out-of-band (admin/seed), consumed at most once and never
// deleted. The consumed flag transitions false -> true exactly once, guarded
// by a conditional update in the repository.
type RedemptionCode struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Code         string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	Amount       int        `gorm:"not null" json:"amount"`
	ValidityDays int        `gorm:"not null;default:0" json:"validity_days"`
	ExpiresAt    *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	Consumed     bool       `gorm:"not null;default:false;index" json:"consumed"`
	ConsumedBy   *uint      `gorm:"default:null;index" json:"consumed_by,omitempty"`
	ConsumedAt   *time.Time `gorm:"type:timestamp;default:null" json:"consumed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExpired reports whether the code itself is past its usable window,
// regardless of consumption state.
func (c *RedemptionCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}
