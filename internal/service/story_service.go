package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
	"github.com/hakwonsoft/kinderbook-api/pkg/jobs"
	"github.com/hakwonsoft/kinderbook-api/pkg/storage"
)

type storyRepository interface {
	List(ctx context.Context, filter models.StoryFilter) ([]models.Story, int, error)
	FindByID(ctx context.Context, id string) (*models.Story, error)
	ListByInstitutionAndStatus(ctx context.Context, institutionID string, status models.StoryStatus) ([]models.Story, error)
	Create(ctx context.Context, story *models.Story) error
	UpdateStatus(ctx context.Context, id string, status models.StoryStatus) error
	UpdateStylized(ctx context.Context, id, stylizedURL, stylizedPath string) error
	Delete(ctx context.Context, id string) error
}

type storyUploaderReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type storyThemeReader interface {
	FindByID(ctx context.Context, id string) (*models.Theme, error)
	FindActiveByInstitution(ctx context.Context, institutionID string) (*models.Theme, error)
}

type storyStorybookRepository interface {
	ExistsByStoryID(ctx context.Context, storyID string) (bool, error)
	DeleteByStoryID(ctx context.Context, storyID string) (int, error)
}

// listingCache caches listing payloads and supports prefix invalidation.
type listingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// CreateStoryRequest captures story submission payload. The drawing
// itself arrives as a multipart upload. Actor fields identify the caller
// when a staff member submits on behalf of another user.
type CreateStoryRequest struct {
	Title       string `validate:"required"`
	Description string
	ThemeID     string
	UploaderID  string `validate:"required"`
	Filename    string `validate:"required"`
	ContentType string
	Size        int64 `validate:"gt=0"`
	File        io.Reader

	ActorID            string
	ActorRole          models.Role
	ActorInstitutionID string
}

// StoryListing is the cached shape of an institution story listing.
type StoryListing struct {
	Stories    []models.Story     `json:"stories"`
	Pagination *models.Pagination `json:"pagination"`
}

// StylizePayload is the queued job payload for the image pipeline.
type StylizePayload struct {
	StoryID string `json:"story_id"`
}

// StoryService owns story submission and the production lifecycle.
type StoryService struct {
	repo          storyRepository
	themeRepo     storyThemeReader
	userRepo      storyUploaderReader
	storybookRepo storyStorybookRepository
	store         storage.ObjectStore
	cache         listingCache
	queue         jobEnqueuer
	cacheTTL      time.Duration
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewStoryService constructs StoryService.
func NewStoryService(repo storyRepository, themeRepo storyThemeReader, userRepo storyUploaderReader, storybookRepo storyStorybookRepository, store storage.ObjectStore, cache listingCache, queue jobEnqueuer, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *StoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &StoryService{repo: repo, themeRepo: themeRepo, userRepo: userRepo, storybookRepo: storybookRepo, store: store, cache: cache, queue: queue, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

func storyCacheKey(filter models.StoryFilter) string {
	return fmt.Sprintf("stories:%s:%s:%s:%s:%d:%d", filter.InstitutionID, filter.Status, filter.ThemeID, filter.UploaderID, filter.Page, filter.PageSize)
}

func (s *StoryService) invalidate(ctx context.Context, institutionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "stories:"+institutionID+":*"); err != nil {
		s.logger.Warn("failed to invalidate story cache", zap.String("institution_id", institutionID), zap.Error(err))
	}
}

// List returns stories with pagination metadata. Institution-scoped
// listings are served from cache when possible.
func (s *StoryService) List(ctx context.Context, filter models.StoryFilter) ([]models.Story, *models.Pagination, error) {
	cacheable := s.cache != nil && filter.InstitutionID != ""
	key := storyCacheKey(filter)

	if cacheable {
		var cached StoryListing
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Stories, cached.Pagination, nil
		}
	}

	stories, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stories")
	}
	pagination := models.NewPagination(filter.Page, filter.PageSize, int64(total))

	if cacheable {
		if err := s.cache.Set(ctx, key, StoryListing{Stories: stories, Pagination: pagination}, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache story listing", zap.String("key", key), zap.Error(err))
		}
	}
	return stories, pagination, nil
}

// Get returns a single story.
func (s *StoryService) Get(ctx context.Context, id string) (*models.Story, error) {
	story, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "story not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load story")
	}
	return story, nil
}

// Create submits a drawing. The image is stored first, the story row is
// created as unregistered, and the stylize job is queued afterwards.
// Stories are always submitted against the active theme of the
// uploader's institution unless a theme is given explicitly.
func (s *StoryService) Create(ctx context.Context, req CreateStoryRequest) (*models.Story, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid story payload")
	}

	uploader, err := s.userRepo.FindByID(ctx, req.UploaderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "uploader not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uploader")
	}

	if req.ActorID != "" && req.ActorID != uploader.ID {
		if !req.ActorRole.Staff() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may submit on behalf of another user")
		}
		if req.ActorRole != models.RoleAdmin && req.ActorInstitutionID != uploader.InstitutionID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "uploader belongs to another institution")
		}
	}

	var theme *models.Theme
	if req.ThemeID != "" {
		theme, err = s.themeRepo.FindByID(ctx, req.ThemeID)
	} else {
		theme, err = s.themeRepo.FindActiveByInstitution(ctx, uploader.InstitutionID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no theme available for submission")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}
	if theme.InstitutionID != uploader.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "theme belongs to another institution")
	}

	storyID := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if ext == "" {
		ext = ".png"
	}
	originalPath := fmt.Sprintf("stories/%s/original%s", storyID, ext)

	originalURL, err := s.store.Upload(ctx, originalPath, req.File, req.Size, req.ContentType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store drawing")
	}

	story := &models.Story{
		ID:            storyID,
		InstitutionID: uploader.InstitutionID,
		ThemeID:       theme.ID,
		UploaderID:    uploader.ID,
		UploaderName:  uploader.Name,
		Title:         req.Title,
		Description:   req.Description,
		Status:        models.StoryUnregistered,
		OriginalURL:   originalURL,
		OriginalPath:  originalPath,
	}
	if err := s.repo.Create(ctx, story); err != nil {
		if delErr := s.store.Delete(ctx, originalPath); delErr != nil {
			s.logger.Warn("failed to clean up orphaned drawing", zap.String("path", originalPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create story")
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{Type: "stylize", Payload: StylizePayload{StoryID: story.ID}}); err != nil {
			s.logger.Warn("failed to enqueue stylize job", zap.String("story_id", story.ID), zap.Error(err))
		}
	}

	s.invalidate(ctx, story.InstitutionID)
	return story, nil
}

// MarkStylized records the stylized image produced for a story.
func (s *StoryService) MarkStylized(ctx context.Context, id, stylizedURL, stylizedPath string) error {
	story, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStylized(ctx, id, stylizedURL, stylizedPath); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record stylized image")
	}
	s.invalidate(ctx, story.InstitutionID)
	return nil
}

func (s *StoryService) transition(ctx context.Context, story *models.Story, next models.StoryStatus) error {
	if !story.Status.CanTransitionTo(next) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move story from %s to %s", story.Status, next))
	}
	if err := s.repo.UpdateStatus(ctx, story.ID, next); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update story status")
	}
	story.Status = next
	s.invalidate(ctx, story.InstitutionID)
	return nil
}

// Register moves an unregistered story into the registered pool.
func (s *StoryService) Register(ctx context.Context, id string) (*models.Story, error) {
	story, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, story, models.StoryRegistered); err != nil {
		return nil, err
	}
	return story, nil
}

// Unregister returns a registered story to the unregistered state. Once
// a storybook exists for the story the registration is locked in.
func (s *StoryService) Unregister(ctx context.Context, id string) (*models.Story, error) {
	story, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	hasBook, err := s.storybookRepo.ExistsByStoryID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check storybook")
	}
	if hasBook {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "story already has a storybook")
	}

	if err := s.transition(ctx, story, models.StoryUnregistered); err != nil {
		return nil, err
	}
	return story, nil
}

// StartProduction moves a registered story into production.
func (s *StoryService) StartProduction(ctx context.Context, id string) (*models.Story, error) {
	story, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, story, models.StoryInProduction); err != nil {
		return nil, err
	}
	return story, nil
}

// StartProductionAll moves every registered story of an institution into
// production. Each story is handled independently; one failure never
// aborts the rest, and the per-story outcomes are returned.
func (s *StoryService) StartProductionAll(ctx context.Context, institutionID string) ([]models.TransitionResult, error) {
	stories, err := s.repo.ListByInstitutionAndStatus(ctx, institutionID, models.StoryRegistered)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registered stories")
	}

	results := make([]models.TransitionResult, 0, len(stories))
	for i := range stories {
		story := stories[i]
		if err := s.transition(ctx, &story, models.StoryInProduction); err != nil {
			results = append(results, models.TransitionResult{StoryID: story.ID, OK: false, Reason: appErrors.FromError(err).Message})
			continue
		}
		results = append(results, models.TransitionResult{StoryID: story.ID, OK: true})
	}
	return results, nil
}

// Complete marks an in-production story as completed. Storybook saves
// use this once the book is persisted.
func (s *StoryService) Complete(ctx context.Context, id string) (*models.Story, error) {
	story, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, story, models.StoryCompleted); err != nil {
		return nil, err
	}
	return story, nil
}

// Delete removes a story together with its storybook and stored images.
// Missing images are tolerated; other object-store failures are logged
// and reported but do not block the deletion.
func (s *StoryService) Delete(ctx context.Context, id string) error {
	story, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	for _, path := range []string{story.OriginalPath, story.StylizedPath} {
		if path == "" {
			continue
		}
		if err := s.store.Delete(ctx, path); err != nil {
			s.logger.Warn("failed to delete stored image", zap.String("path", path), zap.Error(err))
		}
	}

	if _, err := s.storybookRepo.DeleteByStoryID(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete storybook")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete story")
	}

	s.invalidate(ctx, story.InstitutionID)
	return nil
}
