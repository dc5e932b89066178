package repository

import (
	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
}

// CoverImageRepository defines the gallery-facing database operations
type CoverImageRepository interface {
	Create(image *models.CoverImage) error
	GetByID(id uint) (*models.CoverImage, error)
	GetByUUID(uuid string) (*models.CoverImage, error)
	GetByUserID(userID uint, offset, limit int) ([]models.CoverImage, error)
	GetPublic(offset, limit int) ([]models.CoverImage, error)
	CountPublic() (int64, error)
	UpdateStoragePaths(id uint, storagePath, thumbnailPath string) error
	UpdateViewCount(id uint) error
}

// Repositories bundles all repository instances
type Repositories struct {
	User       UserRepository
	CoverImage CoverImageRepository
}

// NewRepositories creates all repositories backed by the given DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		CoverImage: NewCoverImageRepository(db),
	}
}
