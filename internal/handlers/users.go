package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qc-standards/internal/service"
)

func (h *Handler) Me(c *gin.Context) {
	u, err := h.Users.Me(actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateMe(c *gin.Context) {
	var p service.ProfilePatch
	if !bind(c, &p) {
		return
	}
	u, err := h.Users.UpdateMe(c.Request.Context(), actor(c), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c *gin.Context) {
	p, ok := h.page(c)
	if !ok {
		return
	}
	items, total, err := h.Users.List(c.Request.Context(), actor(c), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	list(c, items, total, p)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	u, err := h.Users.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var p service.UserPatch
	if !bind(c, &p) {
		return
	}
	u, err := h.Users.Update(c.Request.Context(), actor(c), id, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
