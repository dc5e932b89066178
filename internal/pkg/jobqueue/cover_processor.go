package jobqueue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2/log"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/repository"
)

const (
	// Generated covers from the provider are short-lived, so the download
	// has to happen soon after generation.
	coverDownloadTimeout = 60 * time.Second
	coverDownloadMaxSize = 20 << 20 // 20 MB

	thumbnailWidth   = 540
	thumbnailQuality = 85
)

var coverHTTPClient = &http.Client{Timeout: coverDownloadTimeout}

// processCoverProcessingJob downloads the generated image from the provider,
// mirrors it into the asset store and writes a WebP thumbnail next to it.
func (q *Queue) processCoverProcessingJob(ctx context.Context, job *Job) error {
	payload, err := CoverProcessingJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid cover processing payload: %w", err)
	}

	coverRepo := repository.GetCoverImageRepository()
	cover, err := coverRepo.GetByID(payload.CoverID)
	if err != nil {
		return fmt.Errorf("cover %d not found: %w", payload.CoverID, err)
	}

	if q.store == nil {
		log.Warnf("[JobQueue] No asset store configured, cover %s keeps provider URL only", cover.UUID)
		return nil
	}

	data, contentType, err := downloadCover(ctx, payload.ProviderURL)
	if err != nil {
		return fmt.Errorf("failed to download cover %s: %w", cover.UUID, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode cover %s: %w", cover.UUID, err)
	}

	originalKey := fmt.Sprintf("covers/%s/original%s", cover.UUID, extensionForContentType(contentType))
	if _, err := q.store.Upload(ctx, originalKey, data, contentType); err != nil {
		return fmt.Errorf("failed to upload cover %s: %w", cover.UUID, err)
	}

	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, thumbnailQuality)
	if err != nil {
		return fmt.Errorf("failed to create webp encoder options: %w", err)
	}

	var thumbBuf bytes.Buffer
	if err := webp.Encode(&thumbBuf, thumb, options); err != nil {
		return fmt.Errorf("failed to encode thumbnail for cover %s: %w", cover.UUID, err)
	}

	thumbKey := fmt.Sprintf("covers/%s/thumb.webp", cover.UUID)
	if _, err := q.store.Upload(ctx, thumbKey, thumbBuf.Bytes(), "image/webp"); err != nil {
		return fmt.Errorf("failed to upload thumbnail for cover %s: %w", cover.UUID, err)
	}

	if err := coverRepo.UpdateStoragePaths(cover.ID, originalKey, thumbKey); err != nil {
		return fmt.Errorf("failed to update storage paths for cover %s: %w", cover.UUID, err)
	}

	log.Infof("[JobQueue] Cover %s mirrored to asset store (%d bytes original, %d bytes thumbnail)",
		cover.UUID, len(data), thumbBuf.Len())
	return nil
}

// downloadCover fetches the generated image from the provider URL
func downloadCover(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := coverHTTPClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, coverDownloadMaxSize))
	if err != nil {
		return nil, "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return data, contentType, nil
}

func extensionForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
