package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
)

func newStorybookRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStorybookRepositoryFindByStoryID(t *testing.T) {
	db, mock, cleanup := newStorybookRepoMock(t)
	defer cleanup()
	repo := NewStorybookRepository(db)

	pages := []byte(`[{"image_url":"http://x/p1.png","text":"Once upon a time"}]`)
	rows := sqlmock.NewRows([]string{"id", "original_story_id", "institution_id", "title", "author", "pages", "created_at", "updated_at"}).
		AddRow("b1", "s1", "i1", "My Cat", "minji", pages, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM storybooks WHERE original_story_id = $1 LIMIT 1")).
		WithArgs("s1").
		WillReturnRows(rows)

	book, err := repo.FindByStoryID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "b1", book.ID)
	require.Len(t, book.Pages, 1)
	assert.Equal(t, "Once upon a time", book.Pages[0].Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorybookRepositoryExistsByStoryID(t *testing.T) {
	db, mock, cleanup := newStorybookRepoMock(t)
	defer cleanup()
	repo := NewStorybookRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM storybooks WHERE original_story_id = $1 LIMIT 1")).
		WithArgs("s1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsByStoryID(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorybookRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newStorybookRepoMock(t)
	defer cleanup()
	repo := NewStorybookRepository(db)

	mock.ExpectExec("INSERT INTO storybooks").
		WithArgs(sqlmock.AnyArg(), "s1", "i1", "My Cat", "minji", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	book := &models.Storybook{
		OriginalStoryID: "s1",
		InstitutionID:   "i1",
		Title:           "My Cat",
		Author:          "minji",
		Pages:           models.StorybookPages{{ImageURL: "http://x/p1.png", Text: "Once upon a time"}},
	}
	require.NoError(t, repo.Create(context.Background(), book))
	assert.NotEmpty(t, book.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorybookRepositoryDeleteByStoryID(t *testing.T) {
	db, mock, cleanup := newStorybookRepoMock(t)
	defer cleanup()
	repo := NewStorybookRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM storybooks WHERE original_story_id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteByStoryID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
