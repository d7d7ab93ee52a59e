package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
	"github.com/hakwonsoft/kinderbook-api/pkg/export"
)

type mockStorybookRepo struct {
	books map[string]models.Storybook
}

func (m *mockStorybookRepo) put(book models.Storybook) {
	if m.books == nil {
		m.books = make(map[string]models.Storybook)
	}
	m.books[book.ID] = book
}

func (m *mockStorybookRepo) ListByInstitution(ctx context.Context, institutionID string) ([]models.Storybook, error) {
	var list []models.Storybook
	for _, b := range m.books {
		if b.InstitutionID == institutionID {
			list = append(list, b)
		}
	}
	return list, nil
}

func (m *mockStorybookRepo) FindByID(ctx context.Context, id string) (*models.Storybook, error) {
	if b, ok := m.books[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStorybookRepo) FindByStoryID(ctx context.Context, storyID string) (*models.Storybook, error) {
	for _, b := range m.books {
		if b.OriginalStoryID == storyID {
			book := b
			return &book, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStorybookRepo) Create(ctx context.Context, book *models.Storybook) error {
	if book.ID == "" {
		book.ID = "new-book"
	}
	m.put(*book)
	return nil
}

func (m *mockStorybookRepo) Update(ctx context.Context, book *models.Storybook) error {
	m.put(*book)
	return nil
}

func newStorybookServiceForTest(repo *mockStorybookRepo, storyRepo *mockStoryRepo) *StorybookService {
	stories := newStoryServiceForTest(storyRepo, &mockThemeReader{}, &mockUploaderReader{}, &mockStorybookChecker{}, newFakeStore(), newFakeCache(), &fakeQueue{})
	return NewStorybookService(repo, stories, export.NewPDFExporter(), nil, nil)
}

func TestStorybookServiceSaveRequiresProduction(t *testing.T) {
	storyRepo := &mockStoryRepo{}
	storyRepo.put(models.Story{ID: "s1", InstitutionID: "i1", Status: models.StoryRegistered, UploaderName: "minji"})
	svc := newStorybookServiceForTest(&mockStorybookRepo{}, storyRepo)

	_, err := svc.Save(context.Background(), "s1", SaveStorybookRequest{
		Title: "My Cat",
		Pages: []SavePagePayload{{ImageURL: "http://cdn.local/p1.png", Text: "Once upon a time"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestStorybookServiceFirstSaveCompletesStory(t *testing.T) {
	storyRepo := &mockStoryRepo{}
	storyRepo.put(models.Story{ID: "s1", InstitutionID: "i1", Status: models.StoryInProduction, UploaderName: "minji"})
	repo := &mockStorybookRepo{}
	svc := newStorybookServiceForTest(repo, storyRepo)

	book, err := svc.Save(context.Background(), "s1", SaveStorybookRequest{
		Title: "My Cat",
		Pages: []SavePagePayload{
			{ImageURL: "http://cdn.local/cover.png", Text: "My Cat"},
			{ImageURL: "http://cdn.local/p2.png", Text: "The end"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "minji", book.Author)
	assert.Equal(t, models.StoryCompleted, storyRepo.stories["s1"].Status)

	cover, ok := book.Cover()
	require.True(t, ok)
	assert.Equal(t, "http://cdn.local/cover.png", cover.ImageURL)
}

func TestStorybookServiceSaveRejectsEmptyPages(t *testing.T) {
	storyRepo := &mockStoryRepo{}
	storyRepo.put(models.Story{ID: "s1", InstitutionID: "i1", Status: models.StoryInProduction})
	svc := newStorybookServiceForTest(&mockStorybookRepo{}, storyRepo)

	_, err := svc.Save(context.Background(), "s1", SaveStorybookRequest{Title: "My Cat"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStorybookServiceResaveReplacesPages(t *testing.T) {
	storyRepo := &mockStoryRepo{}
	storyRepo.put(models.Story{ID: "s1", InstitutionID: "i1", Status: models.StoryCompleted, UploaderName: "minji"})
	repo := &mockStorybookRepo{}
	repo.put(models.Storybook{ID: "b1", OriginalStoryID: "s1", InstitutionID: "i1", Title: "Old Title", Author: "minji", Pages: models.StorybookPages{{ImageURL: "http://cdn.local/old.png"}}})
	svc := newStorybookServiceForTest(repo, storyRepo)

	book, err := svc.Save(context.Background(), "s1", SaveStorybookRequest{
		Title: "New Title",
		Pages: []SavePagePayload{{ImageURL: "http://cdn.local/new.png", Text: "rewritten"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", book.ID)
	assert.Equal(t, "New Title", book.Title)
	require.Len(t, repo.books["b1"].Pages, 1)
	assert.Equal(t, "http://cdn.local/new.png", repo.books["b1"].Pages[0].ImageURL)
}

func TestStorybookServiceExportPDF(t *testing.T) {
	storyRepo := &mockStoryRepo{}
	repo := &mockStorybookRepo{}
	repo.put(models.Storybook{ID: "b1", OriginalStoryID: "s1", InstitutionID: "i1", Title: "My Cat", Author: "minji", Pages: models.StorybookPages{
		{ImageURL: "http://cdn.local/cover.png", Text: "My Cat"},
		{ImageURL: "http://cdn.local/p2.png", Text: "The end"},
	}})
	svc := newStorybookServiceForTest(repo, storyRepo)

	payload, filename, err := svc.ExportPDF(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "My Cat.pdf", filename)
	assert.True(t, len(payload) > 4)
	assert.Equal(t, "%PDF", string(payload[:4]))
}
