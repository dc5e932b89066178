package repository

import (
	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
	"gorm.io/gorm"
)

// coverImageRepository implements the CoverImageRepository interface
type coverImageRepository struct {
	db *gorm.DB
}

// NewCoverImageRepository creates a new cover image repository instance
func NewCoverImageRepository(db *gorm.DB) CoverImageRepository {
	return &coverImageRepository{db: db}
}

func (r *coverImageRepository) Create(image *models.CoverImage) error {
	return r.db.Create(image).Error
}

func (r *coverImageRepository) GetByID(id uint) (*models.CoverImage, error) {
	var image models.CoverImage
	err := r.db.First(&image, id).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *coverImageRepository) GetByUUID(uuid string) (*models.CoverImage, error) {
	var image models.CoverImage
	err := r.db.Where("uuid = ?", uuid).First(&image).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *coverImageRepository) GetByUserID(userID uint, offset, limit int) ([]models.CoverImage, error) {
	var images []models.CoverImage
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&images).Error
	return images, err
}

func (r *coverImageRepository) GetPublic(offset, limit int) ([]models.CoverImage, error) {
	var images []models.CoverImage
	err := r.db.Where("is_public = ?", true).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&images).Error
	return images, err
}

func (r *coverImageRepository) CountPublic() (int64, error) {
	var count int64
	err := r.db.Model(&models.CoverImage{}).Where("is_public = ?", true).Count(&count).Error
	return count, err
}

func (r *coverImageRepository) UpdateStoragePaths(id uint, storagePath, thumbnailPath string) error {
	return r.db.Model(&models.CoverImage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"storage_path":   storagePath,
			"thumbnail_path": thumbnailPath,
		}).Error
}

func (r *coverImageRepository) UpdateViewCount(id uint) error {
	return r.db.Model(&models.CoverImage{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
}
