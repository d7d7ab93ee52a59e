package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hakwonsoft/kinderbook-api/internal/service"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
	"github.com/hakwonsoft/kinderbook-api/pkg/response"
)

// ThemeHandler exposes drawing theme endpoints.
type ThemeHandler struct {
	service *service.ThemeService
}

// NewThemeHandler constructs a theme handler.
func NewThemeHandler(svc *service.ThemeService) *ThemeHandler {
	return &ThemeHandler{service: svc}
}

// List returns the themes of the caller's institution.
func (h *ThemeHandler) List(c *gin.Context) {
	themes, err := h.service.List(c.Request.Context(), institutionScope(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, themes, nil)
}

// GetActive returns the currently active theme.
func (h *ThemeHandler) GetActive(c *gin.Context) {
	theme, err := h.service.GetActive(c.Request.Context(), institutionScope(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme, nil)
}

// Get returns one theme.
func (h *ThemeHandler) Get(c *gin.Context) {
	theme, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme, nil)
}

// Create adds a theme.
func (h *ThemeHandler) Create(c *gin.Context) {
	var req service.CreateThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.InstitutionID == "" {
		req.InstitutionID = institutionScope(c)
	}
	theme, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, theme)
}

// Update modifies a theme.
func (h *ThemeHandler) Update(c *gin.Context) {
	var req service.UpdateThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme, nil)
}

// Activate makes the theme the single active one of its institution.
func (h *ThemeHandler) Activate(c *gin.Context) {
	theme, err := h.service.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme, nil)
}

// Deactivate clears the active flag.
func (h *ThemeHandler) Deactivate(c *gin.Context) {
	theme, err := h.service.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme, nil)
}

// Delete removes a theme that no story references.
func (h *ThemeHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
