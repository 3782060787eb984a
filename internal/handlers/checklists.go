package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qc-standards/internal/models"
	"qc-standards/internal/service"
)

func (h *Handler) ListChecklists(c *gin.Context) {
	p, ok := h.page(c)
	if !ok {
		return
	}
	templateID, ok := optionalUint(c, "template_id")
	if !ok {
		return
	}
	createdBy, ok := optionalUint(c, "created_by_id")
	if !ok {
		return
	}
	items, total, err := h.Checklists.List(c.Request.Context(), actor(c), service.ChecklistListFilter{
		TemplateID:  templateID,
		Status:      models.QCDocStatus(c.Query("status")),
		SerialNo:    c.Query("serial_no"),
		CreatedByID: createdBy,
		Page:        p,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	list(c, items, total, p)
}

func (h *Handler) CreateChecklist(c *gin.Context) {
	var in service.ChecklistInput
	if !bind(c, &in) {
		return
	}
	d, err := h.Checklists.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetChecklist(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	d, err := h.Checklists.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteChecklist(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Checklists.Delete(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddResult(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.ResultInput
	if !bind(c, &in) {
		return
	}
	r, err := h.Checklists.AddResult(c.Request.Context(), actor(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateResult(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resultID, ok := parseID(c, "result_id")
	if !ok {
		return
	}
	var p service.ResultPatch
	if !bind(c, &p) {
		return
	}
	r, err := h.Checklists.UpdateResult(c.Request.Context(), actor(c), id, resultID, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) CompleteChecklist(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.CompleteInput
	if !bindOptional(c, &in) {
		return
	}
	d, err := h.Checklists.Complete(c.Request.Context(), actor(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) RejectChecklist(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.RejectInput
	if !bindOptional(c, &in) {
		return
	}
	d, err := h.Checklists.Reject(c.Request.Context(), actor(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// AttachResultPhoto takes a multipart "file" field.
func (h *Handler) AttachResultPhoto(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	resultID, ok := parseID(c, "result_id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	r, err := h.Checklists.AttachPhoto(c.Request.Context(), actor(c), id, resultID,
		fh.Filename, fh.Size, fh.Header.Get("Content-Type"), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
