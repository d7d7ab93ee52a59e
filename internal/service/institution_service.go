package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
)

type institutionRepository interface {
	List(ctx context.Context, filter models.InstitutionFilter) ([]models.Institution, int, error)
	FindByID(ctx context.Context, id string) (*models.Institution, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, institution *models.Institution) error
	Update(ctx context.Context, institution *models.Institution) error
	Delete(ctx context.Context, id string) error
}

type institutionUserRepository interface {
	ExistsByName(ctx context.Context, institutionID, name, excludeID string) (bool, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	DeleteByInstitution(ctx context.Context, institutionID string) (int, error)
}

type institutionClassRepository interface {
	DeleteByInstitution(ctx context.Context, institutionID string) (int, error)
}

type institutionThemeRepository interface {
	DeleteByInstitution(ctx context.Context, institutionID string) (int, error)
}

// userCascader removes one user together with every story, storybook and
// stored image the user owns.
type userCascader interface {
	DeleteCascade(ctx context.Context, userID string) (models.CascadeResult, error)
}

// CreateInstitutionRequest captures institution creation payload. A
// director account is provisioned alongside the institution.
type CreateInstitutionRequest struct {
	Name             string `json:"name" validate:"required"`
	AddressRegion    string `json:"address_region" validate:"required"`
	AddressDistrict  string `json:"address_district" validate:"required"`
	AddressDetail    string `json:"address_detail"`
	Phone            string `json:"phone" validate:"required"`
	DirectorName     string `json:"director_name" validate:"required"`
	DirectorPassword string `json:"director_password" validate:"required,min=4"`
}

// UpdateInstitutionRequest modifies institution fields.
type UpdateInstitutionRequest struct {
	Name            string `json:"name" validate:"required"`
	AddressRegion   string `json:"address_region" validate:"required"`
	AddressDistrict string `json:"address_district" validate:"required"`
	AddressDetail   string `json:"address_detail"`
	Phone           string `json:"phone" validate:"required"`
	AdminName       string `json:"admin_name"`
}

// InstitutionService coordinates institution operations, including the
// full-tree cascade deletion.
type InstitutionService struct {
	repo      institutionRepository
	userRepo  institutionUserRepository
	classRepo institutionClassRepository
	themeRepo institutionThemeRepository
	cascader  userCascader
	cache     listingCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInstitutionService constructs InstitutionService.
func NewInstitutionService(repo institutionRepository, userRepo institutionUserRepository, classRepo institutionClassRepository, themeRepo institutionThemeRepository, cascader userCascader, cache listingCache, validate *validator.Validate, logger *zap.Logger) *InstitutionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstitutionService{repo: repo, userRepo: userRepo, classRepo: classRepo, themeRepo: themeRepo, cascader: cascader, cache: cache, validator: validate, logger: logger}
}

// List returns institutions with pagination metadata.
func (s *InstitutionService) List(ctx context.Context, filter models.InstitutionFilter) ([]models.Institution, *models.Pagination, error) {
	institutions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list institutions")
	}
	return institutions, models.NewPagination(filter.Page, filter.PageSize, int64(total)), nil
}

// Get returns a single institution.
func (s *InstitutionService) Get(ctx context.Context, id string) (*models.Institution, error) {
	institution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}
	return institution, nil
}

// Create registers a new institution together with its director account.
// The institution name is unique across the whole system.
func (s *InstitutionService) Create(ctx context.Context, req CreateInstitutionRequest) (*models.Institution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid institution payload")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check institution name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateName, "institution name already exists")
	}

	// Director names are checked across every institution because the
	// login lookup is global.
	exists, err = s.userRepo.ExistsByName(ctx, "", req.DirectorName, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check director name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateName, "director name already exists")
	}

	institution := &models.Institution{
		Name:            req.Name,
		AddressRegion:   req.AddressRegion,
		AddressDistrict: req.AddressDistrict,
		AddressDetail:   req.AddressDetail,
		Phone:           req.Phone,
		AdminName:       req.DirectorName,
	}
	if err := s.repo.Create(ctx, institution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create institution")
	}

	hash, err := HashPassword(req.DirectorPassword)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision director account")
	}
	director := &models.User{
		InstitutionID: institution.ID,
		Name:          req.DirectorName,
		Role:          models.RoleDirector,
		PasswordHash:  hash,
	}
	if err := s.userRepo.Create(ctx, director); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision director account")
	}

	s.logger.Info("institution created",
		zap.String("institution_id", institution.ID),
		zap.String("director_id", director.ID))
	return institution, nil
}

// Update modifies an institution. Renames keep the global name uniqueness.
func (s *InstitutionService) Update(ctx context.Context, id string, req UpdateInstitutionRequest) (*models.Institution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid institution payload")
	}

	institution, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check institution name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateName, "institution name already exists")
	}

	institution.Name = req.Name
	institution.AddressRegion = req.AddressRegion
	institution.AddressDistrict = req.AddressDistrict
	institution.AddressDetail = req.AddressDetail
	institution.Phone = req.Phone
	if req.AdminName != "" {
		institution.AdminName = req.AdminName
	}
	if err := s.repo.Update(ctx, institution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update institution")
	}
	return institution, nil
}

// Delete removes an institution and everything it owns: every user with
// their stories, storybooks and stored images, then classes, themes and
// finally the institution row itself. Object-store failures are collected
// into the result instead of aborting the cascade; missing rows are
// treated as already done.
func (s *InstitutionService) Delete(ctx context.Context, id string) (*models.CascadeResult, error) {
	institution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "institution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institution")
	}

	users, err := s.userRepo.ListByInstitution(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list institution users")
	}

	result := &models.CascadeResult{}
	for _, user := range users {
		userResult, err := s.cascader.DeleteCascade(ctx, user.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to cascade user %s", user.ID))
		}
		result.Merge(userResult)
	}

	classes, err := s.classRepo.DeleteByInstitution(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete institution classes")
	}
	result.ClassesDeleted += classes

	themes, err := s.themeRepo.DeleteByInstitution(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete institution themes")
	}
	result.ThemesDeleted += themes

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete institution")
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "stories:"+id+":*"); err != nil {
			s.logger.Warn("failed to invalidate story cache", zap.String("institution_id", id), zap.Error(err))
		}
	}

	s.logger.Info("institution cascade deleted",
		zap.String("institution_id", id),
		zap.String("name", institution.Name),
		zap.Int("users", result.UsersDeleted),
		zap.Int("stories", result.StoriesDeleted),
		zap.Int("blob_failures", len(result.BlobFailures)))
	return result, nil
}
