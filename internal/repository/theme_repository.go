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

// ThemeRepository handles persistence for drawing themes.
type ThemeRepository struct {
	db *sqlx.DB
}

// NewThemeRepository instantiates a theme repository.
func NewThemeRepository(db *sqlx.DB) *ThemeRepository {
	return &ThemeRepository{db: db}
}

// ListByInstitution returns all themes of an institution, newest first.
func (r *ThemeRepository) ListByInstitution(ctx context.Context, institutionID string) ([]models.Theme, error) {
	const query = `SELECT id, institution_id, name, description, is_active, created_at, updated_at FROM themes WHERE institution_id = $1 ORDER BY created_at DESC`
	var themes []models.Theme
	if err := r.db.SelectContext(ctx, &themes, query, institutionID); err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	return themes, nil
}

// FindByID loads a theme by identifier.
func (r *ThemeRepository) FindByID(ctx context.Context, id string) (*models.Theme, error) {
	const query = `SELECT id, institution_id, name, description, is_active, created_at, updated_at FROM themes WHERE id = $1`
	var theme models.Theme
	if err := r.db.GetContext(ctx, &theme, query, id); err != nil {
		return nil, err
	}
	return &theme, nil
}

// FindActiveByInstitution returns the currently active theme of an institution.
func (r *ThemeRepository) FindActiveByInstitution(ctx context.Context, institutionID string) (*models.Theme, error) {
	const query = `SELECT id, institution_id, name, description, is_active, created_at, updated_at FROM themes WHERE institution_id = $1 AND is_active = TRUE LIMIT 1`
	var theme models.Theme
	if err := r.db.GetContext(ctx, &theme, query, institutionID); err != nil {
		return nil, err
	}
	return &theme, nil
}

// ExistsByName checks if a theme with the given name exists in an institution, optionally excluding an ID.
func (r *ThemeRepository) ExistsByName(ctx context.Context, institutionID, name, excludeID string) (bool, error) {
	base := "SELECT 1 FROM themes WHERE institution_id = $1 AND name = $2"
	args := []interface{}{institutionID, name}
	if excludeID != "" {
		base += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check theme name: %w", err)
	}
	return true, nil
}

// Create inserts a new theme record.
func (r *ThemeRepository) Create(ctx context.Context, theme *models.Theme) error {
	if theme.ID == "" {
		theme.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if theme.CreatedAt.IsZero() {
		theme.CreatedAt = now
	}
	theme.UpdatedAt = now

	const query = `INSERT INTO themes (id, institution_id, name, description, is_active, created_at, updated_at)
        VALUES (:id, :institution_id, :name, :description, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, theme); err != nil {
		return fmt.Errorf("create theme: %w", err)
	}
	return nil
}

// Update modifies an existing theme.
func (r *ThemeRepository) Update(ctx context.Context, theme *models.Theme) error {
	theme.UpdatedAt = time.Now().UTC()
	const query = `UPDATE themes SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, theme); err != nil {
		return fmt.Errorf("update theme: %w", err)
	}
	return nil
}

// SetActive marks the provided theme as active and deactivates every other
// theme of the same institution in one transaction.
func (r *ThemeRepository) SetActive(ctx context.Context, institutionID, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE themes SET is_active = FALSE, updated_at = $1 WHERE institution_id = $2 AND is_active = TRUE AND id <> $3`, time.Now().UTC(), institutionID, id); err != nil {
		return fmt.Errorf("deactivate other themes: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE themes SET is_active = TRUE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("activate theme: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set active tx: %w", err)
	}
	return nil
}

// Deactivate clears the active flag of a theme.
func (r *ThemeRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE themes SET is_active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate theme: %w", err)
	}
	return nil
}

// CountStories returns the number of stories referencing the theme.
func (r *ThemeRepository) CountStories(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM stories WHERE theme_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count theme stories: %w", err)
	}
	return count, nil
}

// Delete removes a theme permanently.
func (r *ThemeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM themes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete theme: %w", err)
	}
	return nil
}

// DeleteByInstitution removes all themes of an institution and reports how many were removed.
func (r *ThemeRepository) DeleteByInstitution(ctx context.Context, institutionID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM themes WHERE institution_id = $1`, institutionID)
	if err != nil {
		return 0, fmt.Errorf("delete institution themes: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete institution themes: %w", err)
	}
	return int(affected), nil
}
