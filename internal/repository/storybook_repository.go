package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
)

// StorybookRepository manages persistence for finished storybooks.
type StorybookRepository struct {
	db *sqlx.DB
}

// NewStorybookRepository constructs a StorybookRepository.
func NewStorybookRepository(db *sqlx.DB) *StorybookRepository {
	return &StorybookRepository{db: db}
}

const storybookColumns = "id, original_story_id, institution_id, title, author, pages, created_at, updated_at"

// ListByInstitution returns all storybooks of an institution, newest first.
func (r *StorybookRepository) ListByInstitution(ctx context.Context, institutionID string) ([]models.Storybook, error) {
	query := fmt.Sprintf("SELECT %s FROM storybooks WHERE institution_id = $1 ORDER BY created_at DESC", storybookColumns)
	var storybooks []models.Storybook
	if err := r.db.SelectContext(ctx, &storybooks, query, institutionID); err != nil {
		return nil, fmt.Errorf("list storybooks: %w", err)
	}
	return storybooks, nil
}

// FindByID loads a storybook by identifier.
func (r *StorybookRepository) FindByID(ctx context.Context, id string) (*models.Storybook, error) {
	query := fmt.Sprintf("SELECT %s FROM storybooks WHERE id = $1", storybookColumns)
	var storybook models.Storybook
	if err := r.db.GetContext(ctx, &storybook, query, id); err != nil {
		return nil, err
	}
	return &storybook, nil
}

// FindByStoryID loads the storybook produced from a given story.
func (r *StorybookRepository) FindByStoryID(ctx context.Context, storyID string) (*models.Storybook, error) {
	query := fmt.Sprintf("SELECT %s FROM storybooks WHERE original_story_id = $1 LIMIT 1", storybookColumns)
	var storybook models.Storybook
	if err := r.db.GetContext(ctx, &storybook, query, storyID); err != nil {
		return nil, err
	}
	return &storybook, nil
}

// ExistsByStoryID checks whether a storybook already exists for a story.
func (r *StorybookRepository) ExistsByStoryID(ctx context.Context, storyID string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM storybooks WHERE original_story_id = $1 LIMIT 1`, storyID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check storybook: %w", err)
	}
	return true, nil
}

// Create inserts a new storybook record.
func (r *StorybookRepository) Create(ctx context.Context, storybook *models.Storybook) error {
	if storybook.ID == "" {
		storybook.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if storybook.CreatedAt.IsZero() {
		storybook.CreatedAt = now
	}
	storybook.UpdatedAt = now

	const query = `INSERT INTO storybooks (id, original_story_id, institution_id, title, author, pages, created_at, updated_at)
        VALUES (:id, :original_story_id, :institution_id, :title, :author, :pages, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, storybook); err != nil {
		return fmt.Errorf("create storybook: %w", err)
	}
	return nil
}

// Update modifies an existing storybook.
func (r *StorybookRepository) Update(ctx context.Context, storybook *models.Storybook) error {
	storybook.UpdatedAt = time.Now().UTC()
	const query = `UPDATE storybooks SET title = :title, author = :author, pages = :pages, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, storybook); err != nil {
		return fmt.Errorf("update storybook: %w", err)
	}
	return nil
}

// DeleteByStoryID removes the storybook produced from a story, if any.
func (r *StorybookRepository) DeleteByStoryID(ctx context.Context, storyID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM storybooks WHERE original_story_id = $1`, storyID)
	if err != nil {
		return 0, fmt.Errorf("delete storybook: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete storybook: %w", err)
	}
	return int(affected), nil
}
