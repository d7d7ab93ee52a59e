package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
)

type themeRepository interface {
	ListByInstitution(ctx context.Context, institutionID string) ([]models.Theme, error)
	FindByID(ctx context.Context, id string) (*models.Theme, error)
	FindActiveByInstitution(ctx context.Context, institutionID string) (*models.Theme, error)
	ExistsByName(ctx context.Context, institutionID, name, excludeID string) (bool, error)
	Create(ctx context.Context, theme *models.Theme) error
	Update(ctx context.Context, theme *models.Theme) error
	SetActive(ctx context.Context, institutionID, id string) error
	Deactivate(ctx context.Context, id string) error
	CountStories(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

// CreateThemeRequest captures theme creation payload.
type CreateThemeRequest struct {
	InstitutionID string `json:"institution_id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Description   string `json:"description"`
	Activate      bool   `json:"activate"`
}

// UpdateThemeRequest modifies theme fields.
type UpdateThemeRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// ThemeService coordinates drawing theme operations, including the
// exclusive activation rule.
type ThemeService struct {
	repo      themeRepository
	instRepo  institutionReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewThemeService constructs ThemeService.
func NewThemeService(repo themeRepository, instRepo institutionReader, validate *validator.Validate, logger *zap.Logger) *ThemeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThemeService{repo: repo, instRepo: instRepo, validator: validate, logger: logger}
}

// List returns the themes of an institution.
func (s *ThemeService) List(ctx context.Context, institutionID string) ([]models.Theme, error) {
	themes, err := s.repo.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list themes")
	}
	return themes, nil
}

// Get returns a single theme.
func (s *ThemeService) Get(ctx context.Context, id string) (*models.Theme, error) {
	theme, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "theme not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}
	return theme, nil
}

// GetActive returns the active theme of an institution, or ErrNotFound
// when no theme is currently active.
func (s *ThemeService) GetActive(ctx context.Context, institutionID string) (*models.Theme, error) {
	theme, err := s.repo.FindActiveByInstitution(ctx, institutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active theme")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active theme")
	}
	return theme, nil
}

// Create adds a theme to an institution. Theme names are unique within
// the institution; the new theme may be activated immediately.
func (s *ThemeService) Create(ctx context.Context, req CreateThemeRequest) (*models.Theme, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid theme payload")
	}

	if _, err := s.instRepo.FindByID(ctx, req.InstitutionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}

	exists, err := s.repo.ExistsByName(ctx, req.InstitutionID, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check theme name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateName, "theme name already exists")
	}

	theme := &models.Theme{
		InstitutionID: req.InstitutionID,
		Name:          req.Name,
		Description:   req.Description,
	}
	if err := s.repo.Create(ctx, theme); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create theme")
	}

	if req.Activate {
		if err := s.repo.SetActive(ctx, theme.InstitutionID, theme.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate theme")
		}
		theme.IsActive = true
	}
	return theme, nil
}

// Update modifies a theme record.
func (s *ThemeService) Update(ctx context.Context, id string, req UpdateThemeRequest) (*models.Theme, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid theme payload")
	}

	theme, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, theme.InstitutionID, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check theme name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateName, "theme name already exists")
	}

	theme.Name = req.Name
	theme.Description = req.Description
	if err := s.repo.Update(ctx, theme); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update theme")
	}
	return theme, nil
}

// Activate makes the theme the single active theme of its institution.
// Any previously active theme is deactivated in the same transaction.
func (s *ThemeService) Activate(ctx context.Context, id string) (*models.Theme, error) {
	theme, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetActive(ctx, theme.InstitutionID, theme.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate theme")
	}
	theme.IsActive = true

	s.logger.Info("theme activated",
		zap.String("theme_id", theme.ID),
		zap.String("institution_id", theme.InstitutionID))
	return theme, nil
}

// Deactivate clears the active flag, leaving the institution with no
// active theme.
func (s *ThemeService) Deactivate(ctx context.Context, id string) (*models.Theme, error) {
	theme, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate theme")
	}
	theme.IsActive = false
	return theme, nil
}

// Delete removes a theme. Themes referenced by stories cannot be removed.
func (s *ThemeService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	stories, err := s.repo.CountStories(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count theme stories")
	}
	if stories > 0 {
		return appErrors.Clone(appErrors.ErrThemeInUse, "")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete theme")
	}
	return nil
}
