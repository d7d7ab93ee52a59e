package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
	"github.com/hakwonsoft/kinderbook-api/pkg/jobs"
)

type fakeStore struct {
	uploaded  map[string]string
	deleted   []string
	failPaths map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploaded: make(map[string]string), failPaths: make(map[string]bool)}
}

func (f *fakeStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (string, error) {
	f.uploaded[path] = contentType
	return "http://cdn.local/" + path, nil
}

func (f *fakeStore) Delete(ctx context.Context, path string) error {
	if f.failPaths[path] {
		return fmt.Errorf("object store unavailable")
	}
	f.deleted = append(f.deleted, path)
	return nil
}

type fakeCache struct {
	entries map[string][]byte
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	f.hits++
	return json.Unmarshal(raw, dest)
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = raw
	return nil
}

func (f *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range f.entries {
		if strings.HasPrefix(key, prefix) {
			delete(f.entries, key)
		}
	}
	return nil
}

type fakeQueue struct {
	jobs []jobs.Job
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type mockStoryRepo struct {
	stories map[string]models.Story
	listed  int
}

func (m *mockStoryRepo) put(story models.Story) {
	if m.stories == nil {
		m.stories = make(map[string]models.Story)
	}
	m.stories[story.ID] = story
}

func (m *mockStoryRepo) List(ctx context.Context, filter models.StoryFilter) ([]models.Story, int, error) {
	m.listed++
	var list []models.Story
	for _, s := range m.stories {
		if filter.InstitutionID != "" && s.InstitutionID != filter.InstitutionID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		list = append(list, s)
	}
	return list, len(list), nil
}

func (m *mockStoryRepo) FindByID(ctx context.Context, id string) (*models.Story, error) {
	if s, ok := m.stories[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStoryRepo) ListByInstitutionAndStatus(ctx context.Context, institutionID string, status models.StoryStatus) ([]models.Story, error) {
	var list []models.Story
	for _, s := range m.stories {
		if s.InstitutionID == institutionID && s.Status == status {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockStoryRepo) Create(ctx context.Context, story *models.Story) error {
	if story.ID == "" {
		story.ID = "new-story"
	}
	m.put(*story)
	return nil
}

func (m *mockStoryRepo) UpdateStatus(ctx context.Context, id string, status models.StoryStatus) error {
	s, ok := m.stories[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	m.stories[id] = s
	return nil
}

func (m *mockStoryRepo) UpdateStylized(ctx context.Context, id, stylizedURL, stylizedPath string) error {
	s, ok := m.stories[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.StylizedURL = stylizedURL
	s.StylizedPath = stylizedPath
	m.stories[id] = s
	return nil
}

func (m *mockStoryRepo) Delete(ctx context.Context, id string) error {
	delete(m.stories, id)
	return nil
}

type mockThemeReader struct {
	themes map[string]models.Theme
	active map[string]models.Theme
}

func (m *mockThemeReader) FindByID(ctx context.Context, id string) (*models.Theme, error) {
	if t, ok := m.themes[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockThemeReader) FindActiveByInstitution(ctx context.Context, institutionID string) (*models.Theme, error) {
	if t, ok := m.active[institutionID]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

type mockUploaderReader struct {
	users map[string]models.User
}

func (m *mockUploaderReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

type mockStorybookChecker struct {
	books map[string]models.Storybook
}

func (m *mockStorybookChecker) ExistsByStoryID(ctx context.Context, storyID string) (bool, error) {
	_, ok := m.books[storyID]
	return ok, nil
}

func (m *mockStorybookChecker) DeleteByStoryID(ctx context.Context, storyID string) (int, error) {
	if _, ok := m.books[storyID]; ok {
		delete(m.books, storyID)
		return 1, nil
	}
	return 0, nil
}

func newStoryServiceForTest(repo *mockStoryRepo, themes *mockThemeReader, users *mockUploaderReader, books *mockStorybookChecker, store *fakeStore, cache *fakeCache, queue *fakeQueue) *StoryService {
	return NewStoryService(repo, themes, users, books, store, cache, queue, time.Minute, nil, nil)
}

func TestStoryServiceCreateSubmitsAgainstActiveTheme(t *testing.T) {
	repo := &mockStoryRepo{}
	themes := &mockThemeReader{active: map[string]models.Theme{
		"i1": {ID: "th1", InstitutionID: "i1", Name: "Under the Sea", IsActive: true},
	}}
	users := &mockUploaderReader{users: map[string]models.User{
		"u1": {ID: "u1", InstitutionID: "i1", Name: "minji", Role: models.RoleStudent},
	}}
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := newStoryServiceForTest(repo, themes, users, &mockStorybookChecker{}, store, newFakeCache(), queue)

	story, err := svc.Create(context.Background(), CreateStoryRequest{
		Title:       "My Cat",
		UploaderID:  "u1",
		Filename:    "cat.png",
		ContentType: "image/png",
		Size:        42,
		File:        bytes.NewReader([]byte("png-bytes")),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StoryUnregistered, story.Status)
	assert.Equal(t, "th1", story.ThemeID)
	assert.Equal(t, "minji", story.UploaderName)
	assert.Contains(t, story.OriginalURL, story.OriginalPath)
	assert.Len(t, store.uploaded, 1)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "stylize", queue.jobs[0].Type)
}

func TestStoryServiceCreateRejectsForeignTheme(t *testing.T) {
	repo := &mockStoryRepo{}
	themes := &mockThemeReader{themes: map[string]models.Theme{
		"th9": {ID: "th9", InstitutionID: "other", Name: "Space"},
	}}
	users := &mockUploaderReader{users: map[string]models.User{
		"u1": {ID: "u1", InstitutionID: "i1", Name: "minji"},
	}}
	svc := newStoryServiceForTest(repo, themes, users, &mockStorybookChecker{}, newFakeStore(), newFakeCache(), &fakeQueue{})

	_, err := svc.Create(context.Background(), CreateStoryRequest{
		Title:      "My Cat",
		ThemeID:    "th9",
		UploaderID: "u1",
		Filename:   "cat.png",
		Size:       42,
		File:       bytes.NewReader([]byte("png-bytes")),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStoryServiceCreateOnBehalfRequiresStaffOfSameInstitution(t *testing.T) {
	themes := &mockThemeReader{active: map[string]models.Theme{
		"i1": {ID: "th1", InstitutionID: "i1", Name: "Under the Sea", IsActive: true},
	}}
	users := &mockUploaderReader{users: map[string]models.User{
		"u1": {ID: "u1", InstitutionID: "i1", Name: "minji", Role: models.RoleStudent},
	}}

	submit := func(actorID string, role models.Role, institutionID string) error {
		svc := newStoryServiceForTest(&mockStoryRepo{}, themes, users, &mockStorybookChecker{}, newFakeStore(), newFakeCache(), &fakeQueue{})
		_, err := svc.Create(context.Background(), CreateStoryRequest{
			Title:              "My Cat",
			UploaderID:         "u1",
			Filename:           "cat.png",
			Size:               42,
			File:               bytes.NewReader([]byte("png-bytes")),
			ActorID:            actorID,
			ActorRole:          role,
			ActorInstitutionID: institutionID,
		})
		return err
	}

	require.NoError(t, submit("u1", models.RoleStudent, "i1"))
	require.NoError(t, submit("t1", models.RoleTeacher, "i1"))
	require.NoError(t, submit("root", models.RoleAdmin, ""))

	err := submit("u2", models.RoleStudent, "i1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = submit("t2", models.RoleTeacher, "other")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStoryServiceRegisterAndInvalidTransition(t *testing.T) {
	repo := &mockStoryRepo{}
	repo.put(models.Story{ID: "s1", InstitutionID: "i1", Status: models.StoryUnregistered})
	svc := newStoryServiceForTest(repo, &mockThemeReader{}, &mockUploaderReader{}, &mockStorybookChecker{}, newFakeStore(), newFakeCache(), &fakeQueue{})

	story, err := svc.Register(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StoryRegistered, story.Status)

	_, err = svc.Complete(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestStoryServiceUnregisterBlockedByStorybook(t *testing.T) {
	repo := &mockStoryRepo{}
	repo.put(models.Story{ID: "s1", InstitutionID: "i1", Status: models.StoryRegistered})
	books := &mockStorybookChecker{books: map[string]models.Storybook{"s1": {ID: "b1"}}}
	svc := newStoryServiceForTest(repo, &mockThemeReader{}, &mockUploaderReader{}, books, newFakeStore(), newFakeCache(), &fakeQueue{})

	_, err := svc.Unregister(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	delete(books.books, "s1")
	story, err := svc.Unregister(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StoryUnregistered, story.Status)
}

func TestStoryServiceStartProductionAllReportsPerStory(t *testing.T) {
	repo := &mockStoryRepo{}
	repo.put(models.Story{ID: "s1", InstitutionID: "i1", Status: models.StoryRegistered})
	repo.put(models.Story{ID: "s2", InstitutionID: "i1", Status: models.StoryRegistered})
	svc := newStoryServiceForTest(repo, &mockThemeReader{}, &mockUploaderReader{}, &mockStorybookChecker{}, newFakeStore(), newFakeCache(), &fakeQueue{})

	results, err := svc.StartProductionAll(context.Background(), "i1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.OK)
		assert.Equal(t, models.StoryInProduction, repo.stories[r.StoryID].Status)
	}
}

func TestStoryServiceListUsesCacheAndInvalidatesOnTransition(t *testing.T) {
	repo := &mockStoryRepo{}
	repo.put(models.Story{ID: "s1", InstitutionID: "i1", Status: models.StoryUnregistered})
	cache := newFakeCache()
	svc := newStoryServiceForTest(repo, &mockThemeReader{}, &mockUploaderReader{}, &mockStorybookChecker{}, newFakeStore(), cache, &fakeQueue{})

	filter := models.StoryFilter{InstitutionID: "i1"}
	_, _, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	_, _, err = svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listed)
	assert.Equal(t, 1, cache.hits)

	_, err = svc.Register(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, cache.entries)
}

func TestStoryServiceDeleteRemovesBookAndImages(t *testing.T) {
	repo := &mockStoryRepo{}
	repo.put(models.Story{ID: "s1", InstitutionID: "i1", Status: models.StoryCompleted, OriginalPath: "stories/s1/original.png", StylizedPath: "stories/s1/stylized.png"})
	books := &mockStorybookChecker{books: map[string]models.Storybook{"s1": {ID: "b1"}}}
	store := newFakeStore()
	svc := newStoryServiceForTest(repo, &mockThemeReader{}, &mockUploaderReader{}, books, store, newFakeCache(), &fakeQueue{})

	require.NoError(t, svc.Delete(context.Background(), "s1"))
	assert.Empty(t, repo.stories)
	assert.Empty(t, books.books)
	assert.ElementsMatch(t, []string{"stories/s1/original.png", "stories/s1/stylized.png"}, store.deleted)
}
