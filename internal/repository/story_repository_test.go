package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
)

func newStoryRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func storyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "institution_id", "theme_id", "uploader_id", "uploader_name", "title", "description", "status", "original_url", "original_path", "stylized_url", "stylized_path", "created_at", "updated_at"})
}

func TestStoryRepositoryListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newStoryRepoMock(t)
	defer cleanup()
	repo := NewStoryRepository(db)

	rows := storyRows().AddRow("s1", "i1", "th1", "u1", "minji", "My Cat", "a cat story", models.StoryRegistered, "http://x/orig.png", "stories/s1/orig.png", "", "", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM stories WHERE 1=1 AND institution_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("i1", models.StoryRegistered).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM stories WHERE 1=1 AND institution_id = $1 AND status = $2")).
		WithArgs("i1", models.StoryRegistered).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.StoryFilter{InstitutionID: "i1", Status: models.StoryRegistered})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoryRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newStoryRepoMock(t)
	defer cleanup()
	repo := NewStoryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE stories SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("s1", models.StoryInProduction, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "s1", models.StoryInProduction))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoryRepositoryUpdateStylized(t *testing.T) {
	db, mock, cleanup := newStoryRepoMock(t)
	defer cleanup()
	repo := NewStoryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE stories SET stylized_url = $2, stylized_path = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("s1", "http://x/styl.png", "stories/s1/styl.png", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.UpdateStylized(context.Background(), "s1", "http://x/styl.png", "stories/s1/styl.png"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoryRepositoryListByInstitutionAndStatus(t *testing.T) {
	db, mock, cleanup := newStoryRepoMock(t)
	defer cleanup()
	repo := NewStoryRepository(db)

	rows := storyRows().
		AddRow("s1", "i1", "th1", "u1", "minji", "My Cat", "", models.StoryRegistered, "http://x/1.png", "stories/s1/1.png", "", "", time.Now(), time.Now()).
		AddRow("s2", "i1", "th1", "u2", "juno", "My Dog", "", models.StoryRegistered, "http://x/2.png", "stories/s2/2.png", "", "", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM stories WHERE institution_id = $1 AND status = $2 ORDER BY created_at ASC")).
		WithArgs("i1", models.StoryRegistered).
		WillReturnRows(rows)

	list, err := repo.ListByInstitutionAndStatus(context.Background(), "i1", models.StoryRegistered)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
