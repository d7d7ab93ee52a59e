package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
)

// StoryRepository manages persistence for submitted stories.
type StoryRepository struct {
	db *sqlx.DB
}

// NewStoryRepository constructs a StoryRepository.
func NewStoryRepository(db *sqlx.DB) *StoryRepository {
	return &StoryRepository{db: db}
}

const storyColumns = "id, institution_id, theme_id, uploader_id, uploader_name, title, description, status, original_url, original_path, stylized_url, stylized_path, created_at, updated_at"

// List returns stories matching the provided filters, newest first.
func (r *StoryRepository) List(ctx context.Context, filter models.StoryFilter) ([]models.Story, int, error) {
	base := "FROM stories WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.InstitutionID != "" {
		conditions = append(conditions, fmt.Sprintf("institution_id = $%d", len(args)+1))
		args = append(args, filter.InstitutionID)
	}
	if filter.ThemeID != "" {
		conditions = append(conditions, fmt.Sprintf("theme_id = $%d", len(args)+1))
		args = append(args, filter.ThemeID)
	}
	if filter.UploaderID != "" {
		conditions = append(conditions, fmt.Sprintf("uploader_id = $%d", len(args)+1))
		args = append(args, filter.UploaderID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", storyColumns, base, size, offset)

	var stories []models.Story
	if err := r.db.SelectContext(ctx, &stories, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list stories: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count stories: %w", err)
	}

	return stories, total, nil
}

// FindByID loads a story by identifier.
func (r *StoryRepository) FindByID(ctx context.Context, id string) (*models.Story, error) {
	query := fmt.Sprintf("SELECT %s FROM stories WHERE id = $1", storyColumns)
	var story models.Story
	if err := r.db.GetContext(ctx, &story, query, id); err != nil {
		return nil, err
	}
	return &story, nil
}

// ListByUploader returns every story a user submitted.
func (r *StoryRepository) ListByUploader(ctx context.Context, uploaderID string) ([]models.Story, error) {
	query := fmt.Sprintf("SELECT %s FROM stories WHERE uploader_id = $1 ORDER BY created_at DESC", storyColumns)
	var stories []models.Story
	if err := r.db.SelectContext(ctx, &stories, query, uploaderID); err != nil {
		return nil, fmt.Errorf("list uploader stories: %w", err)
	}
	return stories, nil
}

// ListByInstitutionAndStatus returns stories of an institution in a given status.
func (r *StoryRepository) ListByInstitutionAndStatus(ctx context.Context, institutionID string, status models.StoryStatus) ([]models.Story, error) {
	query := fmt.Sprintf("SELECT %s FROM stories WHERE institution_id = $1 AND status = $2 ORDER BY created_at ASC", storyColumns)
	var stories []models.Story
	if err := r.db.SelectContext(ctx, &stories, query, institutionID, status); err != nil {
		return nil, fmt.Errorf("list stories by status: %w", err)
	}
	return stories, nil
}

// Create inserts a new story record.
func (r *StoryRepository) Create(ctx context.Context, story *models.Story) error {
	if story.ID == "" {
		story.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if story.CreatedAt.IsZero() {
		story.CreatedAt = now
	}
	story.UpdatedAt = now

	const query = `INSERT INTO stories (id, institution_id, theme_id, uploader_id, uploader_name, title, description, status, original_url, original_path, stylized_url, stylized_path, created_at, updated_at)
        VALUES (:id, :institution_id, :theme_id, :uploader_id, :uploader_name, :title, :description, :status, :original_url, :original_path, :stylized_url, :stylized_path, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, story); err != nil {
		return fmt.Errorf("create story: %w", err)
	}
	return nil
}

// UpdateStatus changes the lifecycle status of a story.
func (r *StoryRepository) UpdateStatus(ctx context.Context, id string, status models.StoryStatus) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE stories SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update story status: %w", err)
	}
	return nil
}

// UpdateStylized records the stylized image produced for a story.
func (r *StoryRepository) UpdateStylized(ctx context.Context, id, stylizedURL, stylizedPath string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE stories SET stylized_url = $2, stylized_path = $3, updated_at = $4 WHERE id = $1`, id, stylizedURL, stylizedPath, time.Now().UTC()); err != nil {
		return fmt.Errorf("update story stylized image: %w", err)
	}
	return nil
}

// Delete removes a story permanently.
func (r *StoryRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	return nil
}
