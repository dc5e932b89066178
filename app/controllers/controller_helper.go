package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
)

const (
	// SessionKeyUserID is the session key holding the authenticated user ID
	SessionKeyUserID = "user_id"

	defaultPageSize = 24
	maxPageSize     = 100
)

// getPagination reads page/page_size query params and returns offset and limit
func getPagination(c *fiber.Ctx) (int, int) {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.Query("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return (page - 1) * size, size
}

// isDuplicateEntryErr reports whether err is a unique-index violation, either
// already translated by GORM or still the raw MySQL error 1062.
func isDuplicateEntryErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// coverResponse serializes a cover for API responses. The asset store mirror
// wins over the provider URL once the background job has filled it in.
func coverResponse(cover *models.CoverImage) fiber.Map {
	imageURL := cover.ProviderURL
	thumbnailURL := ""
	if assetStore != nil {
		if cover.StoragePath != "" {
			imageURL = assetStore.PublicURL(cover.StoragePath)
		}
		if cover.ThumbnailPath != "" {
			thumbnailURL = assetStore.PublicURL(cover.ThumbnailPath)
		}
	}

	return fiber.Map{
		"uuid":          cover.UUID,
		"prompt":        cover.Prompt,
		"image_url":     imageURL,
		"thumbnail_url": thumbnailURL,
		"is_public":     cover.IsPublic,
		"view_count":    cover.ViewCount,
		"created_at":    cover.CreatedAt.UTC().Format(time.RFC3339),
	}
}
