package generation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
	"github.com/elvinn/hongbao-cover-ai-sub000/app/repository"
)

var (
	// ErrNoCredits means the entitlement gate denied the request.
	ErrNoCredits = errors.New("no_credits")
	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("empty_prompt")
)

const maxPromptLength = 1000

// Gate is the entitlement slice of the credits service.
type Gate interface {
	CanGenerate(ctx context.Context, userID uint, now time.Time) (bool, error)
	Consume(ctx context.Context, userID uint, now time.Time) (bool, error)
}

// Enqueuer hands finished covers to the background pipeline for mirroring
// and thumbnailing.
type Enqueuer interface {
	EnqueueCoverProcessing(coverID uint, providerURL string) error
}

// Service runs the generation flow: gate check, provider call, consume on
// success, persist, enqueue post-processing.
type Service struct {
	provider Provider
	gate     Gate
	covers   repository.CoverImageRepository
	queue    Enqueuer
}

// NewService creates a generation service from injected collaborators. The
// queue may be nil; covers then stay on their provider URL.
func NewService(provider Provider, gate Gate, covers repository.CoverImageRepository, queue Enqueuer) *Service {
	return &Service{provider: provider, gate: gate, covers: covers, queue: queue}
}

// Generate produces one cover for the user. The provider is only called when
// the gate pre-check passes, and a credit is consumed strictly AFTER the
// provider succeeds: a failed generation never costs a credit. The consume is
// the authoritative decision; if it loses a race against a concurrent request
// spending the last credit, the generated asset is discarded rather than
// given away.
func (s *Service) Generate(ctx context.Context, userID uint, prompt string, isPublic bool, now time.Time) (*models.CoverImage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > maxPromptLength {
		// Cut on a rune boundary so CJK prompts stay valid UTF-8.
		prompt = string([]rune(prompt)[:maxPromptLength])
	}

	ok, err := s.gate.CanGenerate(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCredits
	}

	imageURL, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		// No credit was spent; surface the provider failure as-is.
		return nil, err
	}

	spent, err := s.gate.Consume(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if !spent {
		log.Warnf("[Generation] user %d exhausted balance between check and consume, discarding generated asset", userID)
		return nil, ErrNoCredits
	}

	cover := &models.CoverImage{
		UserID:      userID,
		Prompt:      prompt,
		ProviderURL: imageURL,
		IsPublic:    isPublic,
	}
	if err := s.covers.Create(cover); err != nil {
		// The credit is spent and the image exists at the provider;
		// losing the row is operator-relevant.
		log.Errorf("[Generation] cover persist failed for user %d (url %s): %v", userID, imageURL, err)
		return nil, err
	}

	if s.queue != nil {
		if err := s.queue.EnqueueCoverProcessing(cover.ID, imageURL); err != nil {
			log.Warnf("[Generation] enqueue post-processing failed for cover %d: %v", cover.ID, err)
		}
	}

	return cover, nil
}

// ListByUser returns a page of the user's covers, newest first.
func (s *Service) ListByUser(userID uint, offset, limit int) ([]models.CoverImage, error) {
	return s.covers.GetByUserID(userID, offset, limit)
}
