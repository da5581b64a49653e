package account

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/picshelf/service/internal/middleware"
	"github.com/picshelf/service/internal/response"
	"github.com/picshelf/service/internal/storage"
	"github.com/picshelf/service/internal/token"
)

// MaxUploadSize caps the multipart body accepted by Upload.
const MaxUploadSize = storage.MaxObjectSize

// Handler holds HTTP handlers for media and profile endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new account Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the authenticated account endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	h.MediaRoutes(r)
	r.Get("/profile", h.GetProfile)
}

// MediaRoutes mounts only the upload and image endpoints. They are also
// served directly under /api for clients of the older image API.
func (h *Handler) MediaRoutes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Get("/images/{remoteId}", h.GetImage)
	r.Delete("/images/{remoteId}", h.DeleteImage)
}

type deletedData struct {
	RemoteID string `json:"remoteId" example:"a1b2c3"`
}

// Upload godoc
//
//	@Summary		Upload an image
//	@Description	Stores the file in the media store and records it on the caller's account. An upload event is published on success.
//	@Tags			media
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		CookieAuth
//	@Param			file	formData	file	true	"Image file"
//	@Success		201		{object}	response.Envelope{data=storage.MediaObject}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Router			/users/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			return
		}
		response.BadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "could not read uploaded file")
		return
	}
	if len(data) == 0 {
		response.BadRequest(w, "uploaded file is empty")
		return
	}

	obj, err := h.svc.UploadMedia(r.Context(), p, data, header.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, obj)
}

// GetImage godoc
//
//	@Summary		Download an image
//	@Description	Streams the bytes of an image owned by the caller with the upstream content type.
//	@Tags			media
//	@Produce		octet-stream
//	@Security		CookieAuth
//	@Param			remoteId	path		string	true	"Remote image id"
//	@Success		200			{file}		binary
//	@Failure		400			{object}	response.Envelope
//	@Failure		401			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/users/images/{remoteId} [get]
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	content, err := h.svc.FetchMedia(r.Context(), p, chi.URLParam(r, "remoteId"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.Bytes(w, content.ContentType, content.Bytes)
}

// DeleteImage godoc
//
//	@Summary		Delete an image
//	@Description	Deletes an image owned by the caller from the media store and from the account.
//	@Tags			media
//	@Produce		json
//	@Security		CookieAuth
//	@Param			remoteId	path		string	true	"Remote image id"
//	@Success		200			{object}	response.Envelope{data=deletedData}
//	@Failure		401			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/users/images/{remoteId} [delete]
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	remoteID := chi.URLParam(r, "remoteId")
	if err := h.svc.DeleteMedia(r.Context(), p, remoteID); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, deletedData{RemoteID: remoteID})
}

// GetProfile godoc
//
//	@Summary		Get current profile
//	@Description	Returns the caller's public profile and the images they own.
//	@Tags			users
//	@Produce		json
//	@Security		CookieAuth
//	@Success		200	{object}	response.Envelope{data=profile.Entry}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/users/profile [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	entry, err := h.svc.GetProfile(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, entry)
}

func principal(w http.ResponseWriter, r *http.Request) (token.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		response.Unauthorized(w, "authentication required")
	}
	return p, ok
}

// writeError maps service and store errors onto HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "image not found")
	case errors.Is(err, ErrAccountNotFound):
		response.Unauthorized(w, "account no longer exists")
	case errors.Is(err, storage.ErrInvalidID):
		response.BadRequest(w, "invalid image id")
	case errors.Is(err, storage.ErrUploadFailed):
		response.BadGateway(w, "image upload failed")
	case errors.Is(err, storage.ErrFetchFailed):
		response.BadGateway(w, "image fetch failed")
	case errors.Is(err, storage.ErrDeleteFailed):
		response.BadGateway(w, "image delete failed")
	default:
		response.InternalError(w)
	}
}
