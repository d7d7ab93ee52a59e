package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
)

type mockClassRepo struct {
	classes map[string]models.Class
	members map[string]int
}

func (m *mockClassRepo) put(class models.Class) {
	if m.classes == nil {
		m.classes = make(map[string]models.Class)
	}
	m.classes[class.ID] = class
}

func (m *mockClassRepo) ListByInstitution(ctx context.Context, institutionID string) ([]models.Class, error) {
	var list []models.Class
	for _, c := range m.classes {
		if c.InstitutionID == institutionID {
			list = append(list, c)
		}
	}
	return list, nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) ExistsByName(ctx context.Context, institutionID, name, excludeID string) (bool, error) {
	for _, c := range m.classes {
		if c.InstitutionID == institutionID && c.Name == name && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockClassRepo) CountMembers(ctx context.Context, id string) (int, error) {
	return m.members[id], nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = "generated"
	}
	m.put(*class)
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	m.put(*class)
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	delete(m.classes, id)
	return nil
}

func TestClassCreateValidatesInstitution(t *testing.T) {
	repo := &mockClassRepo{}
	insts := &mockInstitutionReader{institutions: map[string]models.Institution{
		"i1": {ID: "i1", Name: "Sunflower"},
	}}
	svc := NewClassService(repo, insts, nil, nil)

	class, err := svc.Create(context.Background(), CreateClassRequest{InstitutionID: "i1", Name: "Tulip", AgeGroup: "5"})
	require.NoError(t, err)
	assert.Equal(t, "i1", class.InstitutionID)

	_, err = svc.Create(context.Background(), CreateClassRequest{InstitutionID: "ghost", Name: "Rose"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestClassCreateRejectsDuplicateName(t *testing.T) {
	repo := &mockClassRepo{}
	repo.put(models.Class{ID: "c1", InstitutionID: "i1", Name: "Tulip"})
	insts := &mockInstitutionReader{institutions: map[string]models.Institution{
		"i1": {ID: "i1", Name: "Sunflower"},
	}}
	svc := NewClassService(repo, insts, nil, nil)

	_, err := svc.Create(context.Background(), CreateClassRequest{InstitutionID: "i1", Name: "Tulip"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateName.Code, appErrors.FromError(err).Code)
}

func TestClassUpdateChecksNameAgainstSiblings(t *testing.T) {
	repo := &mockClassRepo{}
	repo.put(models.Class{ID: "c1", InstitutionID: "i1", Name: "Tulip"})
	repo.put(models.Class{ID: "c2", InstitutionID: "i1", Name: "Rose"})
	svc := NewClassService(repo, &mockInstitutionReader{}, nil, nil)

	_, err := svc.Update(context.Background(), "c2", UpdateClassRequest{Name: "Tulip"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateName.Code, appErrors.FromError(err).Code)

	class, err := svc.Update(context.Background(), "c2", UpdateClassRequest{Name: "Rose", AgeGroup: "6"})
	require.NoError(t, err)
	assert.Equal(t, "6", class.AgeGroup)
}

func TestClassDeleteBlockedByMembers(t *testing.T) {
	repo := &mockClassRepo{members: map[string]int{"c1": 2}}
	repo.put(models.Class{ID: "c1", InstitutionID: "i1", Name: "Tulip"})
	repo.put(models.Class{ID: "c2", InstitutionID: "i1", Name: "Rose"})
	svc := NewClassService(repo, &mockInstitutionReader{}, nil, nil)

	err := svc.Delete(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Contains(t, repo.classes, "c1")

	require.NoError(t, svc.Delete(context.Background(), "c2"))
	assert.NotContains(t, repo.classes, "c2")
}
