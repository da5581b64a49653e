// Package response writes the envelope every JSON endpoint answers with, and
// the raw byte bodies served for media downloads.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Envelope wraps every JSON payload. Exactly one of Data and Error is set.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON encodes payload as the body of a response with status.
func JSON(w http.ResponseWriter, status int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Bytes serves body verbatim with a 200. An empty contentType falls back to
// application/octet-stream.
func Bytes(w http.ResponseWriter, contentType string, body []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func OK(w http.ResponseWriter, data any)      { JSON(w, http.StatusOK, Envelope{Success: true, Data: data}) }
func Created(w http.ResponseWriter, data any) { JSON(w, http.StatusCreated, Envelope{Success: true, Data: data}) }

// Error writes a failed envelope carrying message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Error: message})
}

func BadRequest(w http.ResponseWriter, msg string)   { Error(w, http.StatusBadRequest, msg) }
func Unauthorized(w http.ResponseWriter, msg string) { Error(w, http.StatusUnauthorized, msg) }
func NotFound(w http.ResponseWriter, msg string)     { Error(w, http.StatusNotFound, msg) }
func Conflict(w http.ResponseWriter, msg string)     { Error(w, http.StatusConflict, msg) }

// BadGateway reports a failure of the remote media service.
func BadGateway(w http.ResponseWriter, msg string) { Error(w, http.StatusBadGateway, msg) }

// InternalError hides the cause behind a fixed message; callers log it.
func InternalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "internal server error")
}
