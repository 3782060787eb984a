package handlers

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"qc-standards/internal/service"
)

// UploadPhoto takes multipart "file" plus optional "checklist_id" and "note".
func (h *Handler) UploadPhoto(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	in := service.UploadInput{
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
	}
	if raw := strings.TrimSpace(c.PostForm("checklist_id")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || v == 0 {
			badRequest(c, "checklist_id must be a positive integer")
			return
		}
		id := uint(v)
		in.ChecklistID = &id
	}
	if note, ok := c.GetPostForm("note"); ok {
		in.Note = &note
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()
	in.Body = f

	p, err := h.Photos.Upload(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPhoto(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.Photos.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) PhotoContent(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, f, err := h.Photos.Open(c.Request.Context(), actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()
	if p.ContentType != "" {
		c.Header("Content-Type", p.ContentType)
	}
	serve(c, p.Filename, f)
}

func (h *Handler) DeletePhoto(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Photos.Delete(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ServeFile streams a stored file by its storage path, as found in photo_path.
func (h *Handler) ServeFile(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	f, err := h.Photos.OpenPath(actor(c), rel)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()
	serve(c, path.Base(rel), f)
}

func serve(c *gin.Context, name string, f afero.File) {
	modTime := time.Time{}
	if st, err := f.Stat(); err == nil {
		modTime = st.ModTime()
	}
	http.ServeContent(c.Writer, c.Request, name, modTime, f)
}
