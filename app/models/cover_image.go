package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CoverImage is one generated red-envelope cover. The provider URL is what
// the generation provider returned; storage/thumbnail paths are filled in by
// the background pipeline once the asset has been mirrored.
type CoverImage struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UUID          string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	Prompt        string         `gorm:"type:varchar(1000);not null" json:"prompt"`
	ProviderURL   string         `gorm:"type:varchar(1024);not null" json:"provider_url"`
	StoragePath   string         `gorm:"type:varchar(512);default:''" json:"storage_path"`
	ThumbnailPath string         `gorm:"type:varchar(512);default:''" json:"thumbnail_path"`
	IsPublic      bool           `gorm:"not null;default:true;index" json:"is_public"`
	ViewCount     uint           `gorm:"not null;default:0" json:"view_count"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a public identifier if none was set.
func (i *CoverImage) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == "" {
		i.UUID = uuid.New().String()
	}
	return nil
}
