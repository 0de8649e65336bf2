// Package api serves the HTTP API and the Telegram bot
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/logger"
)

// Error codes that do not come from the domain layer
const (
	CodeInternal          = "INTERNAL_ERROR"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	CodeBadRequest        = "BAD_REQUEST"
	internalErrorMessage  = "An internal error occurred"
	validationFailMessage = "Request validation failed"
)

// Response is the envelope of every JSON answer
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Details []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail names one invalid field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta carries pagination totals
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func newMeta(total int64, page, pageSize int) *Meta {
	pages := 0
	if pageSize > 0 {
		pages = int(total) / pageSize
		if int(total)%pageSize > 0 {
			pages++
		}
	}
	return &Meta{Total: total, Page: page, PageSize: pageSize, TotalPages: pages}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func okPage(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: newMeta(total, page, pageSize)})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

// statusFor maps a domain error code to an HTTP status
func statusFor(code string) int {
	switch code {
	case entities.CodeNotFound:
		return http.StatusNotFound
	case entities.CodeValidation:
		return http.StatusBadRequest
	case entities.CodeUnauthorized:
		return http.StatusUnauthorized
	case entities.CodeForbidden:
		return http.StatusForbidden
	case entities.CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// handleError writes a domain error as its status, and anything else as a
// 500 without internals
func handleError(c *gin.Context, err error) {
	var domainErr *entities.DomainError
	if errors.As(err, &domainErr) {
		fail(c, statusFor(domainErr.Code), domainErr.Code, domainErr.Message)
		return
	}
	logger.FromGin(c).Error("Request failed", zap.Error(err))
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, CodeInternal, internalErrorMessage)
}
