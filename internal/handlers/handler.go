package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"qc-standards/internal/handlers/common"
	"qc-standards/internal/middleware"
	"qc-standards/internal/models"
	"qc-standards/internal/service"
	"qc-standards/internal/store"
)

// Handler serves the JSON API. Every dependency is passed in; there is no
// package state.
type Handler struct {
	Auth       *service.AuthService
	Users      *service.UserService
	Catalog    *service.CatalogService
	Templates  *service.TemplateService
	Checklists *service.ChecklistService
	Sync       *service.SyncService
	Photos     *service.PhotoService
	Audit      *service.AuditService

	LoginThrottle *middleware.Throttle
	Log           zerolog.Logger

	DefaultPageSize int
	MaxPageSize     int
}

func (h *Handler) fail(c *gin.Context, err error) {
	if !expected(err) {
		h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	common.WriteError(c, err)
}

func expected(err error) bool {
	for _, target := range []error{
		models.ErrNotFound, models.ErrConflict, models.ErrInvalidState,
		models.ErrValidation, models.ErrForbidden, models.ErrUnauthenticated,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func badRequest(c *gin.Context, msg string) {
	common.WriteErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", msg)
}

func parseID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return uint(v), true
}

// optionalUint reads a positive integer query parameter; absent means nil.
func optionalUint(c *gin.Context, name string) (*uint, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		badRequest(c, name+" must be a positive integer")
		return nil, false
	}
	id := uint(v)
	return &id, true
}

// page reads page/page_size, defaulting and clamping the size.
func (h *Handler) page(c *gin.Context) (store.Page, bool) {
	p := store.Page{Number: 1, Size: h.DefaultPageSize}
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "page must be a positive integer")
			return p, false
		}
		p.Number = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "page_size must be a positive integer")
			return p, false
		}
		p.Size = n
	}
	if h.MaxPageSize > 0 && p.Size > h.MaxPageSize {
		p.Size = h.MaxPageSize
	}
	return p, true
}

func list[T any](c *gin.Context, items []T, total int64, p store.Page) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, common.ListResponse[T]{Items: items, Total: total, Page: p.Number, PageSize: p.Size})
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// bindOptional accepts an empty body as the zero value of dst.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func actor(c *gin.Context) *models.User {
	return middleware.CurrentUser(c)
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
