package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hakwonsoft/kinderbook-api/internal/service"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
	"github.com/hakwonsoft/kinderbook-api/pkg/response"
)

// StorybookHandler exposes finished storybook endpoints.
type StorybookHandler struct {
	service *service.StorybookService
}

// NewStorybookHandler constructs a storybook handler.
func NewStorybookHandler(svc *service.StorybookService) *StorybookHandler {
	return &StorybookHandler{service: svc}
}

// List returns the storybooks of the caller's institution.
func (h *StorybookHandler) List(c *gin.Context) {
	storybooks, err := h.service.List(c.Request.Context(), institutionScope(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, storybooks, nil)
}

// Get returns one storybook.
func (h *StorybookHandler) Get(c *gin.Context) {
	storybook, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, storybook, nil)
}

// GetByStory returns the storybook produced from a story.
func (h *StorybookHandler) GetByStory(c *gin.Context) {
	storybook, err := h.service.GetByStory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, storybook, nil)
}

// Save upserts the storybook of a story.
func (h *StorybookHandler) Save(c *gin.Context) {
	var req service.SaveStorybookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	storybook, err := h.service.Save(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, storybook, nil)
}

// ExportPDF downloads a storybook as a PDF.
func (h *StorybookHandler) ExportPDF(c *gin.Context) {
	payload, filename, err := h.service.ExportPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}

// ExportPDFByStory downloads the storybook attached to a story as a PDF.
func (h *StorybookHandler) ExportPDFByStory(c *gin.Context) {
	storybook, err := h.service.GetByStory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, filename, err := h.service.ExportPDF(c.Request.Context(), storybook.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}
