package models

import "time"

// Theme is a drawing topic students submit stories against. At most one
// theme per institution is active at a time; activation is exclusive and
// handled transactionally by the repository.
type Theme struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
