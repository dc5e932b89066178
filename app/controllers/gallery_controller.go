package controllers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/repository"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/cache"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/usercontext"
)

const (
	galleryFirstPageCacheKey = "gallery:public:first_page"
	galleryCacheTTL          = 60 * time.Second
)

// HandleGetGallery lists public covers, newest first. The first page with
// default size is by far the hottest read and is served from Redis.
func HandleGetGallery(c *fiber.Ctx) error {
	offset, limit := getPagination(c)

	useCache := offset == 0 && limit == defaultPageSize
	if useCache {
		if cached, err := cache.Get(galleryFirstPageCacheKey); err == nil && cached != "" {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.SendString(cached)
		}
	}

	repo := repository.GetGlobalFactory().GetCoverImageRepository()
	covers, err := repo.GetPublic(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load gallery"})
	}
	total, err := repo.CountPublic()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load gallery"})
	}

	out := make([]fiber.Map, 0, len(covers))
	for i := range covers {
		out = append(out, coverResponse(&covers[i]))
	}
	response := fiber.Map{"covers": out, "total": total}

	if useCache {
		if raw, err := json.Marshal(response); err == nil {
			if err := cache.Set(galleryFirstPageCacheKey, string(raw), galleryCacheTTL); err != nil {
				log.Warnf("[Gallery] Failed to cache first page: %v", err)
			}
		}
	}

	return c.JSON(response)
}

// HandleGetCover returns a single cover by UUID. Private covers are only
// visible to their owner; each public view bumps the view counter.
func HandleGetCover(c *fiber.Ctx) error {
	uuid := c.Params("uuid")
	if uuid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Missing cover UUID"})
	}

	repo := repository.GetGlobalFactory().GetCoverImageRepository()
	cover, err := repo.GetByUUID(uuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Cover not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load cover"})
	}

	userCtx := usercontext.GetUserContext(c)
	isOwner := userCtx.IsLoggedIn && userCtx.UserID == cover.UserID
	if !cover.IsPublic && !isOwner {
		// Same response as a missing cover so private UUIDs stay unguessable
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Cover not found"})
	}

	if !isOwner {
		if err := repo.UpdateViewCount(cover.ID); err != nil {
			log.Warnf("[Gallery] Failed to bump view count for cover %d: %v", cover.ID, err)
		}
	}

	return c.JSON(coverResponse(cover))
}
