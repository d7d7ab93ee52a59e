package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StorybookPage is one spread of a finished storybook. The first page of
// a storybook doubles as its cover.
type StorybookPage struct {
	ImageURL string `json:"image_url"`
	Text     string `json:"text"`
}

// StorybookPages is stored as a JSONB column.
type StorybookPages []StorybookPage

// Value implements driver.Valuer.
func (p StorybookPages) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *StorybookPages) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for storybook pages: %T", value)
	}
	return json.Unmarshal(b, p)
}

// Storybook is the finished book produced from a story. Each story has at
// most one storybook; saving one moves the story to completed.
type Storybook struct {
	ID              string         `db:"id" json:"id"`
	OriginalStoryID string         `db:"original_story_id" json:"original_story_id"`
	InstitutionID   string         `db:"institution_id" json:"institution_id"`
	Title           string         `db:"title" json:"title"`
	Author          string         `db:"author" json:"author"`
	Pages           StorybookPages `db:"pages" json:"pages"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Cover returns the cover page, which is the first page by convention.
func (b *Storybook) Cover() (StorybookPage, bool) {
	if len(b.Pages) == 0 {
		return StorybookPage{}, false
	}
	return b.Pages[0], true
}
