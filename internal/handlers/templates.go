package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qc-standards/internal/models"
	"qc-standards/internal/service"
)

func (h *Handler) ListTemplates(c *gin.Context) {
	p, ok := h.page(c)
	if !ok {
		return
	}
	modelID, ok := optionalUint(c, "model_id")
	if !ok {
		return
	}
	stageID, ok := optionalUint(c, "stage_id")
	if !ok {
		return
	}
	items, total, err := h.Templates.List(c.Request.Context(), actor(c), service.TemplateListFilter{
		Status:  models.TemplateStatus(c.Query("status")),
		Code:    c.Query("code"),
		ModelID: modelID,
		StageID: stageID,
		Search:  c.Query("search"),
		Page:    p,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	list(c, items, total, p)
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var in service.TemplateInput
	if !bind(c, &in) {
		return
	}
	t, err := h.Templates.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.Templates.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var p service.TemplatePatch
	if !bind(c, &p) {
		return
	}
	t, err := h.Templates.Update(c.Request.Context(), actor(c), id, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Templates.Delete(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) PublishTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.Templates.Publish(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) ArchiveTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.Templates.Archive(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type cloneRequest struct {
	NewRevision string `json:"new_revision"`
}

func (h *Handler) CloneTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req cloneRequest
	if !bind(c, &req) {
		return
	}
	t, err := h.Templates.Clone(c.Request.Context(), actor(c), id, req.NewRevision)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) TemplateStats(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stats, err := h.Templates.Stats(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// steps

func (h *Handler) ListSteps(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	steps, err := h.Templates.ListSteps(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, steps)
}

func (h *Handler) AddStep(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.StepInput
	if !bind(c, &in) {
		return
	}
	st, err := h.Templates.AddStep(c.Request.Context(), actor(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) UpdateStep(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stepID, ok := parseID(c, "step_id")
	if !ok {
		return
	}
	var p service.StepPatch
	if !bind(c, &p) {
		return
	}
	st, err := h.Templates.UpdateStep(c.Request.Context(), actor(c), id, stepID, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) DeleteStep(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stepID, ok := parseID(c, "step_id")
	if !ok {
		return
	}
	if err := h.Templates.DeleteStep(c.Request.Context(), actor(c), id, stepID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
