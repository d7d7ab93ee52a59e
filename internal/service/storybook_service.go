package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
	"github.com/hakwonsoft/kinderbook-api/pkg/export"
)

type storybookRepository interface {
	ListByInstitution(ctx context.Context, institutionID string) ([]models.Storybook, error)
	FindByID(ctx context.Context, id string) (*models.Storybook, error)
	FindByStoryID(ctx context.Context, storyID string) (*models.Storybook, error)
	Create(ctx context.Context, storybook *models.Storybook) error
	Update(ctx context.Context, storybook *models.Storybook) error
}

// SavePagePayload is one page of a storybook save request.
type SavePagePayload struct {
	ImageURL string `json:"image_url" validate:"required"`
	Text     string `json:"text"`
}

// SaveStorybookRequest upserts the storybook of a story. The first page
// is the cover.
type SaveStorybookRequest struct {
	Title string            `json:"title" validate:"required"`
	Pages []SavePagePayload `json:"pages" validate:"required,min=1,dive"`
}

// StorybookService owns finished books and their PDF export.
type StorybookService struct {
	repo      storybookRepository
	stories   *StoryService
	exporter  *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStorybookService constructs StorybookService.
func NewStorybookService(repo storybookRepository, stories *StoryService, exporter *export.PDFExporter, validate *validator.Validate, logger *zap.Logger) *StorybookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorybookService{repo: repo, stories: stories, exporter: exporter, validator: validate, logger: logger}
}

// List returns the storybooks of an institution.
func (s *StorybookService) List(ctx context.Context, institutionID string) ([]models.Storybook, error) {
	storybooks, err := s.repo.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list storybooks")
	}
	return storybooks, nil
}

// Get returns a single storybook.
func (s *StorybookService) Get(ctx context.Context, id string) (*models.Storybook, error) {
	storybook, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "storybook not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load storybook")
	}
	return storybook, nil
}

// GetByStory returns the storybook produced from a story.
func (s *StorybookService) GetByStory(ctx context.Context, storyID string) (*models.Storybook, error) {
	storybook, err := s.repo.FindByStoryID(ctx, storyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "storybook not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load storybook")
	}
	return storybook, nil
}

// Save creates or replaces the storybook of a story. The story must be
// in production (or already completed for re-saves); persisting the
// first version moves the story to completed.
func (s *StorybookService) Save(ctx context.Context, storyID string, req SaveStorybookRequest) (*models.Storybook, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid storybook payload")
	}

	story, err := s.stories.Get(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.Status != models.StoryInProduction && story.Status != models.StoryCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "story is not in production")
	}

	pages := make(models.StorybookPages, 0, len(req.Pages))
	for _, p := range req.Pages {
		pages = append(pages, models.StorybookPage{ImageURL: p.ImageURL, Text: p.Text})
	}

	existing, err := s.repo.FindByStoryID(ctx, storyID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load storybook")
	}

	if existing != nil {
		existing.Title = req.Title
		existing.Pages = pages
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update storybook")
		}
		return existing, nil
	}

	storybook := &models.Storybook{
		OriginalStoryID: storyID,
		InstitutionID:   story.InstitutionID,
		Title:           req.Title,
		Author:          story.UploaderName,
		Pages:           pages,
	}
	if err := s.repo.Create(ctx, storybook); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create storybook")
	}

	if story.Status == models.StoryInProduction {
		if _, err := s.stories.Complete(ctx, storyID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("storybook saved",
		zap.String("storybook_id", storybook.ID),
		zap.String("story_id", storyID),
		zap.Int("pages", len(pages)))
	return storybook, nil
}

// ExportPDF renders a storybook as a downloadable PDF.
func (s *StorybookService) ExportPDF(ctx context.Context, id string) ([]byte, string, error) {
	storybook, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	pages := make([]export.StorybookPage, 0, len(storybook.Pages))
	for _, p := range storybook.Pages {
		pages = append(pages, export.StorybookPage{ImageURL: p.ImageURL, Text: p.Text})
	}

	payload, err := s.exporter.RenderStorybook(storybook.Title, pages)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render storybook pdf")
	}
	return payload, storybook.Title + ".pdf", nil
}
