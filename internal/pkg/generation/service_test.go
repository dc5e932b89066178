package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/models"
)

type fakeProvider struct {
	url      string
	err      error
	lastSeen string
	calls    int
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.lastSeen = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeGate struct {
	balance  int
	consumed int
}

func (f *fakeGate) CanGenerate(ctx context.Context, userID uint, now time.Time) (bool, error) {
	return f.balance > 0, nil
}

func (f *fakeGate) Consume(ctx context.Context, userID uint, now time.Time) (bool, error) {
	if f.balance <= 0 {
		return false, nil
	}
	f.balance--
	f.consumed++
	return true, nil
}

type fakeCoverRepo struct {
	covers []*models.CoverImage
	nextID uint
}

func (f *fakeCoverRepo) Create(image *models.CoverImage) error {
	f.nextID++
	image.ID = f.nextID
	f.covers = append(f.covers, image)
	return nil
}

func (f *fakeCoverRepo) GetByID(id uint) (*models.CoverImage, error) {
	for _, c := range f.covers {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCoverRepo) GetByUUID(uuid string) (*models.CoverImage, error) {
	for _, c := range f.covers {
		if c.UUID == uuid {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCoverRepo) GetByUserID(userID uint, offset, limit int) ([]models.CoverImage, error) {
	var out []models.CoverImage
	for _, c := range f.covers {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCoverRepo) GetPublic(offset, limit int) ([]models.CoverImage, error) {
	return nil, nil
}

func (f *fakeCoverRepo) CountPublic() (int64, error) { return 0, nil }

func (f *fakeCoverRepo) UpdateStoragePaths(id uint, storagePath, thumbnailPath string) error {
	return nil
}

func (f *fakeCoverRepo) UpdateViewCount(id uint) error { return nil }

type fakeEnqueuer struct {
	enqueued []uint
}

func (f *fakeEnqueuer) EnqueueCoverProcessing(coverID uint, providerURL string) error {
	f.enqueued = append(f.enqueued, coverID)
	return nil
}

func TestGenerate_Success(t *testing.T) {
	provider := &fakeProvider{url: "https://provider.example/img.png"}
	gate := &fakeGate{balance: 2}
	repo := &fakeCoverRepo{}
	queue := &fakeEnqueuer{}
	svc := NewService(provider, gate, repo, queue)

	cover, err := svc.Generate(context.Background(), 1, "  golden dragon over lanterns  ", true, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, "golden dragon over lanterns", cover.Prompt)
	assert.Equal(t, "https://provider.example/img.png", cover.ProviderURL)
	assert.True(t, cover.IsPublic)
	assert.Equal(t, 1, gate.consumed)
	assert.Equal(t, []uint{cover.ID}, queue.enqueued)
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	provider := &fakeProvider{url: "https://provider.example/img.png"}
	gate := &fakeGate{balance: 1}
	svc := NewService(provider, gate, &fakeCoverRepo{}, nil)

	_, err := svc.Generate(context.Background(), 1, "   ", false, time.Now())
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, 0, gate.consumed)
}

func TestGenerate_NoCreditsSkipsProvider(t *testing.T) {
	provider := &fakeProvider{url: "https://provider.example/img.png"}
	gate := &fakeGate{balance: 0}
	svc := NewService(provider, gate, &fakeCoverRepo{}, nil)

	_, err := svc.Generate(context.Background(), 1, "tiger cub", false, time.Now())
	assert.ErrorIs(t, err, ErrNoCredits)
	assert.Equal(t, 0, provider.calls)
}

func TestGenerate_ProviderFailureCostsNothing(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream timeout")}
	gate := &fakeGate{balance: 3}
	repo := &fakeCoverRepo{}
	svc := NewService(provider, gate, repo, nil)

	_, err := svc.Generate(context.Background(), 1, "tiger cub", false, time.Now())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCredits)
	assert.Equal(t, 3, gate.balance)
	assert.Empty(t, repo.covers)
}

func TestGenerate_LongPromptIsTruncated(t *testing.T) {
	provider := &fakeProvider{url: "https://provider.example/img.png"}
	gate := &fakeGate{balance: 1}
	svc := NewService(provider, gate, &fakeCoverRepo{}, nil)

	long := strings.Repeat("a", 2000)
	cover, err := svc.Generate(context.Background(), 1, long, false, time.Now())
	assert.NoError(t, err)
	assert.Len(t, cover.Prompt, maxPromptLength)
	assert.Len(t, provider.lastSeen, maxPromptLength)
}

func TestGenerate_MultibytePromptTruncatesOnRuneBoundary(t *testing.T) {
	provider := &fakeProvider{url: "https://provider.example/img.png"}
	gate := &fakeGate{balance: 1}
	svc := NewService(provider, gate, &fakeCoverRepo{}, nil)

	long := strings.Repeat("福", 1200)
	cover, err := svc.Generate(context.Background(), 1, long, false, time.Now())
	assert.NoError(t, err)
	assert.True(t, utf8.ValidString(cover.Prompt))
	assert.Equal(t, maxPromptLength, utf8.RuneCountInString(cover.Prompt))
	assert.Equal(t, cover.Prompt, provider.lastSeen)
}

func TestGenerate_NilQueueIsTolerated(t *testing.T) {
	provider := &fakeProvider{url: "https://provider.example/img.png"}
	gate := &fakeGate{balance: 1}
	repo := &fakeCoverRepo{}
	svc := NewService(provider, gate, repo, nil)

	cover, err := svc.Generate(context.Background(), 1, "red lantern", false, time.Now())
	assert.NoError(t, err)
	assert.NotZero(t, cover.ID)
}
