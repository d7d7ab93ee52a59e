package models

import "time"

// Class is an age-band grouping inside an institution. Students reference
// their class by name, teachers may be assigned to several.
type Class struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	Name          string    `db:"name" json:"name"`
	AgeGroup      string    `db:"age_group" json:"age_group"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
