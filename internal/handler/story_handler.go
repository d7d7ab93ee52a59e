package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hakwonsoft/kinderbook-api/internal/models"
	"github.com/hakwonsoft/kinderbook-api/internal/service"
	appErrors "github.com/hakwonsoft/kinderbook-api/pkg/errors"
	"github.com/hakwonsoft/kinderbook-api/pkg/response"
)

const maxDrawingSize = 20 << 20

// StoryHandler exposes story submission and lifecycle endpoints.
type StoryHandler struct {
	service *service.StoryService
	metrics *service.MetricsService
}

// NewStoryHandler constructs a story handler.
func NewStoryHandler(svc *service.StoryService, metrics *service.MetricsService) *StoryHandler {
	return &StoryHandler{service: svc, metrics: metrics}
}

// List returns stories of the caller's institution with filters.
func (h *StoryHandler) List(c *gin.Context) {
	var filter models.StoryFilter
	filter.InstitutionID = institutionScope(c)
	filter.ThemeID = c.Query("theme_id")
	filter.UploaderID = c.Query("uploader_id")
	if status := c.Query("status"); status != "" {
		filter.Status = models.StoryStatus(status)
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	stories, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stories, pagination)
}

// Get returns one story.
func (h *StoryHandler) Get(c *gin.Context) {
	story, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, story, nil)
}

// Create submits a drawing as multipart form data.
func (h *StoryHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "drawing image is required"))
		return
	}
	defer file.Close()

	if header.Size > maxDrawingSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "drawing image too large"))
		return
	}

	// Staff may submit a drawing on behalf of another member of their
	// institution; everyone else uploads as themselves.
	uploaderID := c.PostForm("uploader_id")
	if uploaderID == "" {
		uploaderID = claims.UserID
	}

	req := service.CreateStoryRequest{
		Title:              c.PostForm("title"),
		Description:        c.PostForm("description"),
		ThemeID:            c.PostForm("theme_id"),
		UploaderID:         uploaderID,
		Filename:           header.Filename,
		ContentType:        header.Header.Get("Content-Type"),
		Size:               header.Size,
		File:               file,
		ActorID:            claims.UserID,
		ActorRole:          claims.Role,
		ActorInstitutionID: claims.InstitutionID,
	}
	story, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncStoryCreated()
	}
	response.Created(c, story)
}

// Register moves a story into the registered pool.
func (h *StoryHandler) Register(c *gin.Context) {
	story, err := h.service.Register(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, story, nil)
}

// Unregister returns a registered story to the unregistered pool.
func (h *StoryHandler) Unregister(c *gin.Context) {
	story, err := h.service.Unregister(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, story, nil)
}

// StartProduction moves one registered story into production.
func (h *StoryHandler) StartProduction(c *gin.Context) {
	story, err := h.service.StartProduction(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, story, nil)
}

// StartProductionAll moves every registered story of the institution into
// production and reports per-story outcomes.
func (h *StoryHandler) StartProductionAll(c *gin.Context) {
	results, err := h.service.StartProductionAll(c.Request.Context(), institutionScope(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// Delete removes a story with its storybook and images.
func (h *StoryHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
