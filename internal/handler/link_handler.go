package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/link-tracker/internal/middleware"
	"github.com/SergeiKhy/link-tracker/internal/models"
	"github.com/SergeiKhy/link-tracker/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	visitorCookie    = "visitor_id"
	visitorCookieTTL = 365 * 24 * time.Hour
)

type LinkHandler struct {
	links    service.LinkService
	recorder service.ClickRecorder
	logger   *zap.Logger
}

func NewLinkHandler(links service.LinkService, recorder service.ClickRecorder, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		links:    links,
		recorder: recorder,
		logger:   logger,
	}
}

type VariableRequest struct {
	Name        string `json:"name" binding:"required"`
	Placeholder string `json:"placeholder" binding:"required"`
}

type CreateLinkRequest struct {
	URL       string            `json:"url" binding:"required"`
	Name      *string           `json:"name,omitempty"`
	Variables []VariableRequest `json:"variables,omitempty"`
}

type LinkResponse struct {
	ShortID     string                `json:"short_id"`
	ShortURL    string                `json:"short_url"`
	OriginalURL string                `json:"original_url"`
	Name        *string               `json:"name,omitempty"`
	Variables   []models.LinkVariable `json:"variables"`
	TotalClicks int64                 `json:"total_clicks"`
	CreatedAt   time.Time             `json:"created_at"`
}

func (h *LinkHandler) toResponse(link *models.Link) LinkResponse {
	variables := link.Variables
	if variables == nil {
		variables = []models.LinkVariable{}
	}
	return LinkResponse{
		ShortID:     link.ShortID,
		ShortURL:    h.links.ShortURL(link),
		OriginalURL: link.OriginalURL,
		Name:        link.Name,
		Variables:   variables,
		TotalClicks: link.TotalClicks,
		CreatedAt:   link.CreatedAt,
	}
}

// CreateLink godoc
// @Summary Create a short link
// @Description Create a new short link with optional name and tracked variables
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link creation request"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/links [post]
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	input := &models.CreateLinkInput{
		OriginalURL: req.URL,
		Name:        req.Name,
	}
	for _, v := range req.Variables {
		input.Variables = append(input.Variables, models.VariableInput{Name: v.Name, Placeholder: v.Placeholder})
	}

	link, err := h.links.CreateLink(c.Request.Context(), middleware.OwnerFromContext(c), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(link))
}

// ListLinks godoc
// @Summary List links of the caller
// @Tags links
// @Produce json
// @Success 200 {array} LinkResponse
// @Router /api/v1/links [get]
func (h *LinkHandler) ListLinks(c *gin.Context) {
	links, err := h.links.ListLinks(c.Request.Context(), middleware.OwnerFromContext(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := make([]LinkResponse, 0, len(links))
	for i := range links {
		response = append(response, h.toResponse(&links[i]))
	}
	c.JSON(http.StatusOK, response)
}

// GetLink godoc
// @Summary Get a short link with its variables
// @Tags links
// @Produce json
// @Param code path string true "Short id"
// @Success 200 {object} LinkResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{code} [get]
func (h *LinkHandler) GetLink(c *gin.Context) {
	link, err := h.links.GetLink(c.Request.Context(), middleware.OwnerFromContext(c), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(link))
}

// DeleteLink godoc
// @Summary Delete a short link
// @Description Delete a short link together with its clicks
// @Tags links
// @Produce json
// @Param code path string true "Short id"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{code} [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	if err := h.links.DeleteLink(c.Request.Context(), middleware.OwnerFromContext(c), c.Param("code")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted successfully"})
}

// AddVariable godoc
// @Summary Add a tracked variable to a link
// @Tags links
// @Accept json
// @Produce json
// @Param code path string true "Short id"
// @Param request body VariableRequest true "Variable"
// @Success 201 {object} models.LinkVariable
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{code}/variables [post]
func (h *LinkHandler) AddVariable(c *gin.Context) {
	var req VariableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	variable, err := h.links.AddVariable(c.Request.Context(), middleware.OwnerFromContext(c), c.Param("code"),
		models.VariableInput{Name: req.Name, Placeholder: req.Placeholder})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, variable)
}

// DeleteVariable godoc
// @Summary Remove a tracked variable from a link
// @Tags links
// @Produce json
// @Param code path string true "Short id"
// @Param id path int true "Variable id"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{code}/variables/{id} [delete]
func (h *LinkHandler) DeleteVariable(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Variable id must be a positive integer",
		})
		return
	}

	if err := h.links.DeleteVariable(c.Request.Context(), middleware.OwnerFromContext(c), c.Param("code"), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Variable deleted successfully"})
}

// Redirect godoc
// @Summary Redirect to original URL
// @Description Record the click and redirect to the original URL
// @Tags links
// @Param code path string true "Short id"
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Router /{code} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	visitorID, _ := c.Cookie(visitorCookie)

	outcome, err := h.recorder.RecordClick(c.Request.Context(), c.Param("code"), service.ClickRequest{
		RemoteAddr:   c.Request.RemoteAddr,
		ForwardedFor: c.GetHeader("X-Forwarded-For"),
		UserAgent:    c.Request.UserAgent(),
		Query:        c.Request.URL.Query(),
		VisitorID:    visitorID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if outcome.NewVisitor {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(visitorCookie, outcome.VisitorID, int(visitorCookieTTL/time.Second), "/", "", false, true)
	}

	c.Redirect(http.StatusFound, outcome.Destination)
}
