package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"qc-standards/internal/store"
)

func testContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, rec
}

func TestPageDefaultsAndClamp(t *testing.T) {
	h := &Handler{DefaultPageSize: 20, MaxPageSize: 100}

	c, _ := testContext(http.MethodGet, "/x", "")
	p, ok := h.page(c)
	assert.True(t, ok)
	assert.Equal(t, store.Page{Number: 1, Size: 20}, p)

	c, _ = testContext(http.MethodGet, "/x?page=3&page_size=1000", "")
	p, ok = h.page(c)
	assert.True(t, ok)
	assert.Equal(t, store.Page{Number: 3, Size: 100}, p)

	c, rec := testContext(http.MethodGet, "/x?page_size=-1", "")
	_, ok = h.page(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseID(t *testing.T) {
	c, rec := testContext(http.MethodGet, "/x", "")
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	_, ok := parseID(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, _ = testContext(http.MethodGet, "/x", "")
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	id, ok := parseID(c, "id")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)
}

func TestBindOptional(t *testing.T) {
	var in struct {
		Reason string `json:"reason"`
	}
	c, _ := testContext(http.MethodPost, "/x", "")
	assert.True(t, bindOptional(c, &in))
	assert.Empty(t, in.Reason)

	c, _ = testContext(http.MethodPost, "/x", `{"reason":"bent"}`)
	assert.True(t, bindOptional(c, &in))
	assert.Equal(t, "bent", in.Reason)

	c, rec := testContext(http.MethodPost, "/x", `{"reason":`)
	assert.False(t, bindOptional(c, &in))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
