package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qc-standards/internal/service"
)

// product models

func (h *Handler) ListModels(c *gin.Context) {
	p, ok := h.page(c)
	if !ok {
		return
	}
	items, total, err := h.Catalog.ListModels(c.Request.Context(), actor(c), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	list(c, items, total, p)
}

func (h *Handler) CreateModel(c *gin.Context) {
	var in service.CatalogInput
	if !bind(c, &in) {
		return
	}
	m, err := h.Catalog.CreateModel(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetModel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	m, err := h.Catalog.GetModel(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateModel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var p service.CatalogPatch
	if !bind(c, &p) {
		return
	}
	m, err := h.Catalog.UpdateModel(c.Request.Context(), actor(c), id, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// stages

func (h *Handler) ListStages(c *gin.Context) {
	p, ok := h.page(c)
	if !ok {
		return
	}
	items, total, err := h.Catalog.ListStages(c.Request.Context(), actor(c), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	list(c, items, total, p)
}

func (h *Handler) CreateStage(c *gin.Context) {
	var in service.CatalogInput
	if !bind(c, &in) {
		return
	}
	st, err := h.Catalog.CreateStage(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) GetStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	st, err := h.Catalog.GetStage(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) UpdateStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var p service.CatalogPatch
	if !bind(c, &p) {
		return
	}
	st, err := h.Catalog.UpdateStage(c.Request.Context(), actor(c), id, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
