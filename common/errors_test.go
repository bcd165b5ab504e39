package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err    *Err
		status int
	}{
		{BadRequest("bad"), http.StatusBadRequest},
		{Unauthorized("who"), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		// duplicate signups report 400, not 409
		{Conflict("taken"), http.StatusBadRequest},
		{ServiceUnavailable("down"), http.StatusServiceUnavailable},
		{NotImplemented("later"), http.StatusNotImplemented},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.Status())
	}
}

func TestErrFormatting(t *testing.T) {
	appErr := NotFound("no story with id %d", 42)
	assert.Equal(t, "no story with id 42", appErr.Error())
}

func TestAbortWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	AbortWithError(c, NotFound("Not found."))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Not found.", resp["detail"])
}

func TestAbortWithError_Unclassified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	AbortWithError(c, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// raw errors never leak their message
	assert.Equal(t, "internal server error", resp["detail"])
}
