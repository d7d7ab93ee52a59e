package models

import "time"

// Institution represents a kindergarten tenant, the root of the ownership
// hierarchy. Every class, theme, user and (transitively) story belongs to
// exactly one institution.
type Institution struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	AddressRegion   string    `db:"address_region" json:"address_region"`
	AddressDistrict string    `db:"address_district" json:"address_district"`
	AddressDetail   string    `db:"address_detail" json:"address_detail"`
	Phone           string    `db:"phone" json:"phone"`
	AdminName       string    `db:"admin_name" json:"admin_name"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// InstitutionFilter defines filter criteria for listing institutions.
type InstitutionFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CascadeResult summarises what an institution cascade deletion removed.
// BlobFailures lists object-store paths that could not be deleted; those
// failures never abort the cascade.
type CascadeResult struct {
	ClassesDeleted    int      `json:"classes_deleted"`
	ThemesDeleted     int      `json:"themes_deleted"`
	UsersDeleted      int      `json:"users_deleted"`
	StoriesDeleted    int      `json:"stories_deleted"`
	StorybooksDeleted int      `json:"storybooks_deleted"`
	BlobFailures      []string `json:"blob_failures,omitempty"`
}

// Merge folds a per-user cascade into the institution-level result.
func (r *CascadeResult) Merge(other CascadeResult) {
	r.ClassesDeleted += other.ClassesDeleted
	r.ThemesDeleted += other.ThemesDeleted
	r.UsersDeleted += other.UsersDeleted
	r.StoriesDeleted += other.StoriesDeleted
	r.StorybooksDeleted += other.StorybooksDeleted
	r.BlobFailures = append(r.BlobFailures, other.BlobFailures...)
}
