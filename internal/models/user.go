package models

import "time"

// Role determines what a user may do. Students submit stories, teachers
// and directors manage their institution, admins manage everything.
type Role string

const (
	RoleStudent  Role = "student"
	RoleTeacher  Role = "teacher"
	RoleDirector Role = "director"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleDirector, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether the role carries institution management rights.
func (r Role) Staff() bool {
	return r == RoleTeacher || r == RoleDirector || r == RoleAdmin
}

// RequiresClass reports whether users of this role must belong to a class.
func (r Role) RequiresClass() bool {
	return r == RoleStudent
}

// User is an account within an institution. Names are unique per
// institution and double as the login identifier. The built-in admin
// account has no institution and cannot be modified or deleted.
type User struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id"`
	ClassID       *string   `db:"class_id" json:"class_id,omitempty"`
	Name          string    `db:"name" json:"name"`
	Role          Role      `db:"role" json:"role"`
	Birthdate     string    `db:"birthdate" json:"birthdate"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// UserFilter defines filter criteria for listing users.
type UserFilter struct {
	InstitutionID string
	Role          Role
	ClassID       string
	Search        string
	Page          int
	PageSize      int
}
