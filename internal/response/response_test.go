package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"username": "alice"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"username": "alice"}, body["data"])
	assert.NotContains(t, body, "error")
}

func TestErrorHelpers(t *testing.T) {
	cases := []struct {
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest, "bad"},
		{func(w http.ResponseWriter) { Unauthorized(w, "who") }, http.StatusUnauthorized, "who"},
		{func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound, "gone"},
		{func(w http.ResponseWriter) { Conflict(w, "taken") }, http.StatusConflict, "taken"},
		{func(w http.ResponseWriter) { BadGateway(w, "upstream") }, http.StatusBadGateway, "upstream"},
		{InternalError, http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		tc.write(rec)

		assert.Equal(t, tc.status, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, tc.msg, body["error"])
	}
}

func TestBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	Bytes(rec, "image/png", []byte{0x89, 'P', 'N', 'G'})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	Bytes(rec, "", []byte("x"))
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
}
