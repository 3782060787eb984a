// Package common holds the JSON response helpers shared by handlers and middleware.
package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"qc-standards/internal/models"
	"qc-standards/internal/photostore"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ListResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// WriteError maps err onto the status taxonomy. Messages of known errors are
// passed through; anything else becomes a bare 500.
func WriteError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		WriteErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	case errors.Is(err, models.ErrForbidden):
		WriteErrorCode(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, models.ErrNotFound):
		WriteErrorCode(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, models.ErrConflict):
		WriteErrorCode(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, models.ErrInvalidState):
		WriteErrorCode(c, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, photostore.ErrTooLarge):
		WriteErrorCode(c, http.StatusRequestEntityTooLarge, "TOO_LARGE", err.Error())
	case errors.Is(err, models.ErrValidation):
		WriteErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	default:
		WriteErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func WriteErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}
