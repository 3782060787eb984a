package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qc-standards/internal/service"
)

type syncTemplatesRequest struct {
	LastSync *time.Time `json:"last_sync"`
}

func (h *Handler) SyncTemplates(c *gin.Context) {
	var req syncTemplatesRequest
	if !bindOptional(c, &req) {
		return
	}
	resp, err := h.Sync.Templates(c.Request.Context(), actor(c), req.LastSync)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SyncChecklists(c *gin.Context) {
	var req service.SyncChecklistsRequest
	if !bindOptional(c, &req) {
		return
	}
	resp, err := h.Sync.Checklists(c.Request.Context(), actor(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
