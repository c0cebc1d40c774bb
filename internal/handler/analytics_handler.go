package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/SergeiKhy/link-tracker/internal/middleware"
	"github.com/SergeiKhy/link-tracker/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AnalyticsHandler struct {
	analytics service.AnalyticsService
	logger    *zap.Logger
}

func NewAnalyticsHandler(analytics service.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
		logger:    logger,
	}
}

// Summary godoc
// @Summary Click analytics for a link
// @Description Aggregated clicks in a window, last 30 days by default
// @Tags analytics
// @Produce json
// @Param code path string true "Short id"
// @Param from query string false "First day, YYYY-MM-DD"
// @Param to query string false "Last day, YYYY-MM-DD"
// @Param days query int false "Window length in days when from is omitted"
// @Success 200 {object} models.AnalyticsSummary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /analytics/{code} [get]
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	q, err := service.ParseRangeQuery(c.Query("from"), c.Query("to"), c.Query("days"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	summary, err := h.analytics.Summary(c.Request.Context(), middleware.OwnerFromContext(c), c.Param("code"), q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Export godoc
// @Summary Export every click of a link as CSV
// @Tags analytics
// @Produce text/csv
// @Param code path string true "Short id"
// @Success 200 {string} string "CSV attachment"
// @Failure 404 {object} ErrorResponse
// @Router /analytics/{code}/export [get]
func (h *AnalyticsHandler) Export(c *gin.Context) {
	export, err := h.analytics.Export(c.Request.Context(), middleware.OwnerFromContext(c), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	if err := w.Write(export.Header); err != nil {
		h.logger.Error("Failed to write CSV header", zap.Error(err))
		return
	}
	if err := w.WriteAll(export.Rows); err != nil {
		h.logger.Error("Failed to write CSV rows", zap.String("short_id", c.Param("code")), zap.Error(err))
	}
}

// GetStats godoc
// @Summary Get click statistics for a short link
// @Description Get all-time total and unique visitor counts
// @Tags links
// @Produce json
// @Param code path string true "Short id"
// @Success 200 {object} models.ClickStats
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{code}/stats [get]
func (h *AnalyticsHandler) GetStats(c *gin.Context) {
	stats, err := h.analytics.Stats(c.Request.Context(), middleware.OwnerFromContext(c), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Dashboard godoc
// @Summary Overview of every link of the caller
// @Description Link and click totals plus the 10 most recent clicks
// @Tags links
// @Produce json
// @Success 200 {object} models.OwnerSummary
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/links/summary [get]
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	summary, err := h.analytics.Dashboard(c.Request.Context(), middleware.OwnerFromContext(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
