package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/link-tracker/internal/repository"
	"github.com/SergeiKhy/link-tracker/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError переводит ошибку сервиса в HTTP ответ
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, body := classifyError(err)

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		logger.Debug("Request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}

	_ = c.Error(err)
	c.JSON(status, body)
}

func classifyError(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, repository.ErrLinkNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Link not found"}
	case errors.Is(err, repository.ErrVariableNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Link variable not found"}
	case errors.Is(err, service.ErrInvalidURL):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_url", Message: "URL must be an absolute http or https address"}
	case errors.Is(err, service.ErrSpamDomain):
		return http.StatusBadRequest, ErrorResponse{Error: "spam_domain", Message: "Domain is blacklisted"}
	case errors.Is(err, service.ErrInvalidVariable):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_variable", Message: err.Error()}
	case errors.Is(err, service.ErrInvalidRange):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_range", Message: err.Error()}
	case errors.Is(err, service.ErrGenerationExhausted):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "generation_exhausted", Message: "Could not allocate a short link, try again"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Internal server error"}
	}
}
