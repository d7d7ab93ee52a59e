package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/hakwonsoft/kinderbook-api/internal/middleware"
	"github.com/hakwonsoft/kinderbook-api/internal/models"
	"github.com/hakwonsoft/kinderbook-api/internal/service"
)

type themeRepoIntegrationMock struct {
	themes     map[string]*models.Theme
	storyCount map[string]int
}

func (m *themeRepoIntegrationMock) ListByInstitution(_ context.Context, institutionID string) ([]models.Theme, error) {
	var out []models.Theme
	for _, t := range m.themes {
		if t.InstitutionID == institutionID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *themeRepoIntegrationMock) FindByID(_ context.Context, id string) (*models.Theme, error) {
	t, ok := m.themes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (m *themeRepoIntegrationMock) FindActiveByInstitution(_ context.Context, institutionID string) (*models.Theme, error) {
	for _, t := range m.themes {
		if t.InstitutionID == institutionID && t.IsActive {
			copied := *t
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *themeRepoIntegrationMock) ExistsByName(_ context.Context, institutionID, name, excludeID string) (bool, error) {
	for _, t := range m.themes {
		if t.InstitutionID == institutionID && t.Name == name && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *themeRepoIntegrationMock) Create(_ context.Context, theme *models.Theme) error {
	copied := *theme
	m.themes[theme.ID] = &copied
	return nil
}

func (m *themeRepoIntegrationMock) Update(_ context.Context, theme *models.Theme) error {
	copied := *theme
	m.themes[theme.ID] = &copied
	return nil
}

func (m *themeRepoIntegrationMock) SetActive(_ context.Context, institutionID, id string) error {
	for _, t := range m.themes {
		if t.InstitutionID == institutionID {
			t.IsActive = t.ID == id
		}
	}
	return nil
}

func (m *themeRepoIntegrationMock) Deactivate(_ context.Context, id string) error {
	if t, ok := m.themes[id]; ok {
		t.IsActive = false
	}
	return nil
}

func (m *themeRepoIntegrationMock) CountStories(_ context.Context, id string) (int, error) {
	return m.storyCount[id], nil
}

func (m *themeRepoIntegrationMock) Delete(_ context.Context, id string) error {
	delete(m.themes, id)
	return nil
}

type institutionReaderIntegrationMock struct{}

func (m *institutionReaderIntegrationMock) FindByID(_ context.Context, id string) (*models.Institution, error) {
	return &models.Institution{ID: id, Name: "Sunflower Kindergarten"}, nil
}

func buildThemeRouter(repo *themeRepoIntegrationMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID:        "test-user",
				Role:          models.Role(role),
				InstitutionID: "inst-1",
			})
		}
		c.Next()
	})

	svc := service.NewThemeService(repo, &institutionReaderIntegrationMock{}, nil, nil)
	h := NewThemeHandler(svc)

	managerOnly := internalmiddleware.RequireRoles(models.RoleDirector, models.RoleAdmin)

	router.GET("/themes", h.List)
	router.GET("/themes/active", h.GetActive)
	router.POST("/themes", managerOnly, h.Create)
	router.POST("/themes/:id/activate", managerOnly, h.Activate)
	router.POST("/themes/:id/deactivate", managerOnly, h.Deactivate)
	router.DELETE("/themes/:id", managerOnly, h.Delete)

	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestThemeRoutesIntegration(t *testing.T) {
	repo := &themeRepoIntegrationMock{
		themes: map[string]*models.Theme{
			"theme-1": {ID: "theme-1", InstitutionID: "inst-1", Name: "Spring", IsActive: true},
			"theme-2": {ID: "theme-2", InstitutionID: "inst-1", Name: "Ocean"},
		},
		storyCount: map[string]int{"theme-1": 3},
	}
	router := buildThemeRouter(repo)

	t.Run("list scoped to institution", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/themes", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), "Spring")
		require.Contains(t, resp.Body.String(), "Ocean")
	})

	t.Run("activate is exclusive", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/themes/theme-2/activate", nil)
		req.Header.Set("X-Test-Role", string(models.RoleDirector))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.True(t, repo.themes["theme-2"].IsActive)
		require.False(t, repo.themes["theme-1"].IsActive)
	})

	t.Run("activate forbidden for teachers", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/themes/theme-1/activate", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("active theme lookup", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/themes/active", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), "theme-2")
	})

	t.Run("deactivate leaves no active theme", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/themes/theme-2/deactivate", nil)
		req.Header.Set("X-Test-Role", string(models.RoleDirector))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)

		req, _ = http.NewRequest(http.MethodGet, "/themes/active", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp = performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("delete blocked while stories reference the theme", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, "/themes/theme-1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleDirector))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
		require.Contains(t, repo.themes, "theme-1")
	})

	t.Run("create rejects duplicate name", func(t *testing.T) {
		payload := bytes.NewBufferString(`{"name":"Spring"}`)
		req, _ := http.NewRequest(http.MethodPost, "/themes", payload)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleDirector))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
	})
}
