package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/repository"
	"github.com/chris40461/scam-or-safe/internal/service"
	"github.com/chris40461/scam-or-safe/internal/taskmanager"
)

// Коды ошибок в ответах API.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeTooManyTasks = "too_many_tasks"
	ErrCodeConflict     = "conflict"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal_error"
)

// ErrorResponse тело ответа с ошибкой.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp ErrorResponse

	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, repository.ErrInvalidID):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, model.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: ErrCodeNotFound, Message: "Not found"}
	case errors.Is(err, taskmanager.ErrTooManyTasks):
		statusCode = http.StatusTooManyRequests
		errResp = ErrorResponse{Code: ErrCodeTooManyTasks, Message: "Too many generation tasks in progress, try again later"}
	case errors.Is(err, service.ErrImagesDisabled), errors.Is(err, taskmanager.ErrTaskNotActive):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Code: ErrCodeConflict, Message: err.Error()}
	case errors.Is(err, taskmanager.ErrShuttingDown):
		statusCode = http.StatusServiceUnavailable
		errResp = ErrorResponse{Code: ErrCodeUnavailable, Message: "Service is shutting down"}
	default:
		h.logger.Error("Unhandled internal error", zap.String("path", c.FullPath()), zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: message})
}
