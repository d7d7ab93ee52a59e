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

// ClassRepository manages persistence for class records.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// ListByInstitution returns all classes of an institution ordered by name.
func (r *ClassRepository) ListByInstitution(ctx context.Context, institutionID string) ([]models.Class, error) {
	const query = `SELECT id, institution_id, name, age_group, created_at, updated_at FROM classes WHERE institution_id = $1 ORDER BY name ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, institutionID); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindByID loads a class by identifier.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, institution_id, name, age_group, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByName checks if a class with the given name exists in an institution, optionally excluding an ID.
func (r *ClassRepository) ExistsByName(ctx context.Context, institutionID, name, excludeID string) (bool, error) {
	base := "SELECT 1 FROM classes WHERE institution_id = $1 AND name = $2"
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
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

// CountMembers returns the number of users assigned to the class.
func (r *ClassRepository) CountMembers(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM users WHERE class_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count class members: %w", err)
	}
	return count, nil
}

// Create inserts a new class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, institution_id, name, age_group, created_at, updated_at)
        VALUES (:id, :institution_id, :name, :age_group, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies an existing class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, age_group = :age_group, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class permanently.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// DeleteByInstitution removes all classes of an institution and reports how many were removed.
func (r *ClassRepository) DeleteByInstitution(ctx context.Context, institutionID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE institution_id = $1`, institutionID)
	if err != nil {
		return 0, fmt.Errorf("delete institution classes: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete institution classes: %w", err)
	}
	return int(affected), nil
}
