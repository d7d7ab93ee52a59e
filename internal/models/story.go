package models

import "time"

// StoryStatus is the production lifecycle state of a story.
type StoryStatus string

const (
	StoryUnregistered StoryStatus = "unregistered"
	StoryRegistered   StoryStatus = "registered"
	StoryInProduction StoryStatus = "in_production"
	StoryCompleted    StoryStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s StoryStatus) Valid() bool {
	switch s {
	case StoryUnregistered, StoryRegistered, StoryInProduction, StoryCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to
// next. Completed is terminal; unregistering is only allowed from
// registered (and the service additionally refuses it once a storybook
// exists for the story).
func (s StoryStatus) CanTransitionTo(next StoryStatus) bool {
	switch s {
	case StoryUnregistered:
		return next == StoryRegistered
	case StoryRegistered:
		return next == StoryUnregistered || next == StoryInProduction
	case StoryInProduction:
		return next == StoryCompleted
	}
	return false
}

// Story is a student drawing submitted against a theme, together with the
// stylized image produced for it. Uploader name and institution are
// denormalised onto the row so listings survive later user renames.
type Story struct {
	ID            string      `db:"id" json:"id"`
	InstitutionID string      `db:"institution_id" json:"institution_id"`
	ThemeID       string      `db:"theme_id" json:"theme_id"`
	UploaderID    string      `db:"uploader_id" json:"uploader_id"`
	UploaderName  string      `db:"uploader_name" json:"uploader_name"`
	Title         string      `db:"title" json:"title"`
	Description   string      `db:"description" json:"description"`
	Status        StoryStatus `db:"status" json:"status"`
	OriginalURL   string      `db:"original_url" json:"original_url"`
	OriginalPath  string      `db:"original_path" json:"-"`
	StylizedURL   string      `db:"stylized_url" json:"stylized_url,omitempty"`
	StylizedPath  string      `db:"stylized_path" json:"-"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// StoryFilter defines filter criteria for listing stories.
type StoryFilter struct {
	InstitutionID string
	ThemeID       string
	UploaderID    string
	Status        StoryStatus
	Page          int
	PageSize      int
}

// TransitionResult reports the outcome of one story inside a bulk status
// change. Failed entries carry the reason; the batch never aborts early.
type TransitionResult struct {
	StoryID string `json:"story_id"`
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
}
