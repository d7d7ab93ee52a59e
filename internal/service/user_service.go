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
	"github.com/hakwonsoft/kinderbook-api/pkg/storage"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByName(ctx context.Context, institutionID, name, excludeID string) (bool, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id string, role models.Role) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

type userClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type userStoryRepository interface {
	ListByUploader(ctx context.Context, uploaderID string) ([]models.Story, error)
	Delete(ctx context.Context, id string) error
}

type userStorybookRepository interface {
	DeleteByStoryID(ctx context.Context, storyID string) (int, error)
}

// CreateUserRequest captures account creation payload. Students must be
// assigned to a class; staff roles must not be.
type CreateUserRequest struct {
	InstitutionID string      `json:"institution_id" validate:"required"`
	ClassID       *string     `json:"class_id"`
	Name          string      `json:"name" validate:"required"`
	Role          models.Role `json:"role" validate:"required"`
	Birthdate     string      `json:"birthdate" validate:"omitempty,len=8,numeric"`
	Password      string      `json:"password" validate:"required,min=4"`
}

// UpdateUserRequest modifies account fields.
type UpdateUserRequest struct {
	Name      string  `json:"name" validate:"required"`
	ClassID   *string `json:"class_id"`
	Birthdate string  `json:"birthdate" validate:"omitempty,len=8,numeric"`
}

// UpdateRoleRequest changes the role of an account.
type UpdateRoleRequest struct {
	Role models.Role `json:"role" validate:"required"`
}

// UserService coordinates account management and owns the per-user
// deletion cascade.
type UserService struct {
	repo          userRepository
	classRepo     userClassReader
	storyRepo     userStoryRepository
	storybookRepo userStorybookRepository
	store         storage.ObjectStore
	cache         listingCache
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, classRepo userClassReader, storyRepo userStoryRepository, storybookRepo userStorybookRepository, store storage.ObjectStore, cache listingCache, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, classRepo: classRepo, storyRepo: storyRepo, storybookRepo: storybookRepo, store: store, cache: cache, validator: validate, logger: logger}
}

// List returns users with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, int64(total)), nil
}

// Get returns a single user.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create registers a new account. Names are unique within the
// institution, students require an existing class of the same
// institution, and staff accounts carry no class.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if !req.Role.Valid() || req.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown or reserved role")
	}
	if req.Role.RequiresClass() && req.ClassID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "students must be assigned to a class")
	}
	if !req.Role.RequiresClass() {
		req.ClassID = nil
	}

	if req.ClassID != nil {
		class, err := s.classRepo.FindByID(ctx, *req.ClassID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
		if class.InstitutionID != req.InstitutionID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "class belongs to another institution")
		}
	}

	exists, err := s.repo.ExistsByName(ctx, req.InstitutionID, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check user name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateName, "user name already exists in this institution")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		InstitutionID: req.InstitutionID,
		ClassID:       req.ClassID,
		Name:          req.Name,
		Role:          req.Role,
		Birthdate:     req.Birthdate,
		PasswordHash:  hash,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	return user, nil
}

// Update modifies an account. The built-in admin cannot be changed.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the admin account cannot be modified")
	}

	if req.Name != user.Name {
		exists, err := s.repo.ExistsByName(ctx, user.InstitutionID, req.Name, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check user name")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrDuplicateName, "user name already exists in this institution")
		}
	}

	// The class rules of Create hold for updates too: class-requiring
	// roles always keep a class, staff never carry one.
	if user.Role.RequiresClass() && req.ClassID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "students must be assigned to a class")
	}
	if !user.Role.RequiresClass() {
		req.ClassID = nil
	}

	if req.ClassID != nil {
		class, err := s.classRepo.FindByID(ctx, *req.ClassID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
		if class.InstitutionID != user.InstitutionID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "class belongs to another institution")
		}
	}

	user.Name = req.Name
	user.ClassID = req.ClassID
	if req.Birthdate != "" {
		user.Birthdate = req.Birthdate
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return user, nil
}

// UpdateRole changes the role of an account. The admin role can neither
// be granted nor revoked.
func (s *UserService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if !req.Role.Valid() || req.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown or reserved role")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the admin account cannot be modified")
	}

	if err := s.repo.UpdateRole(ctx, id, req.Role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user role")
	}
	user.Role = req.Role
	return user, nil
}

// ResetPassword resets an account password to its birthdate. Accounts
// without a recorded birthdate cannot be reset this way.
func (s *UserService) ResetPassword(ctx context.Context, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "the admin account cannot be modified")
	}
	if user.Birthdate == "" {
		return appErrors.Clone(appErrors.ErrValidation, "user has no recorded birthdate")
	}

	hash, err := HashPassword(user.Birthdate)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset password")
	}

	s.logger.Info("password reset to birthdate", zap.String("user_id", id))
	return nil
}

// ExportRoster renders the member roster of an institution as CSV.
func (s *UserService) ExportRoster(ctx context.Context, institutionID string) ([]byte, error) {
	users, err := s.repo.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list institution users")
	}

	data := export.Dataset{Headers: []string{"Name", "Role", "Class", "Birthdate"}}
	for _, u := range users {
		classID := ""
		if u.ClassID != nil {
			classID = *u.ClassID
		}
		data.Rows = append(data.Rows, map[string]string{
			"Name":      u.Name,
			"Role":      string(u.Role),
			"Class":     classID,
			"Birthdate": u.Birthdate,
		})
	}
	payload, err := export.NewCSVExporter().Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
	}
	return payload, nil
}

// Delete removes an account together with every story, storybook and
// stored image it owns.
func (s *UserService) Delete(ctx context.Context, id string) (*models.CascadeResult, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the admin account cannot be deleted")
	}

	result, err := s.DeleteCascade(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "stories:"+user.InstitutionID+":*"); err != nil {
			s.logger.Warn("failed to invalidate story cache", zap.String("institution_id", user.InstitutionID), zap.Error(err))
		}
	}
	return &result, nil
}

// DeleteCascade removes a user row together with the stories the user
// uploaded, their storybooks and their stored images. Object-store
// failures are collected into the result; rows already gone are no-ops.
func (s *UserService) DeleteCascade(ctx context.Context, userID string) (models.CascadeResult, error) {
	result := models.CascadeResult{}

	stories, err := s.storyRepo.ListByUploader(ctx, userID)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list user stories")
	}

	for _, story := range stories {
		for _, path := range []string{story.OriginalPath, story.StylizedPath} {
			if path == "" {
				continue
			}
			if err := s.store.Delete(ctx, path); err != nil {
				s.logger.Warn("failed to delete stored image", zap.String("path", path), zap.Error(err))
				result.BlobFailures = append(result.BlobFailures, path)
			}
		}

		deleted, err := s.storybookRepo.DeleteByStoryID(ctx, story.ID)
		if err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete storybook")
		}
		result.StorybooksDeleted += deleted

		if err := s.storyRepo.Delete(ctx, story.ID); err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete story")
		}
		result.StoriesDeleted++
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	result.UsersDeleted++

	return result, nil
}
