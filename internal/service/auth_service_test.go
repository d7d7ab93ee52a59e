package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
)

type mockAuthRepo struct {
	mockUserRepo
}

func (m *mockAuthRepo) FindByName(ctx context.Context, name string) (*models.User, error) {
	for _, u := range m.users {
		if u.Name == name {
			user := u
			return &user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func newAuthServiceForTest(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		TokenSecret: "test-secret",
		TokenExpiry: time.Hour,
		Issuer:      "kinderbook-test",
	})
}

func TestAuthServiceLoginAndValidate(t *testing.T) {
	hash, err := HashPassword("1234")
	require.NoError(t, err)

	repo := &mockAuthRepo{}
	repo.put(models.User{ID: "u1", InstitutionID: "i1", Name: "minji", Role: models.RoleStudent, PasswordHash: hash})
	svc := newAuthServiceForTest(repo)

	resp, err := svc.Login(context.Background(), LoginRequest{Name: "minji", Password: "1234"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "minji", resp.User.Name)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "i1", claims.InstitutionID)
}

func TestAuthServiceLoginRejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword("1234")
	require.NoError(t, err)

	repo := &mockAuthRepo{}
	repo.put(models.User{ID: "u1", Name: "minji", PasswordHash: hash})
	svc := newAuthServiceForTest(repo)

	_, err = svc.Login(context.Background(), LoginRequest{Name: "minji", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), LoginRequest{Name: "ghost", Password: "1234"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthServiceForTest(&mockAuthRepo{})

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
