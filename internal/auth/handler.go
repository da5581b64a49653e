package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/picshelf/service/internal/middleware"
	"github.com/picshelf/service/internal/response"
	"github.com/picshelf/service/internal/token"
)

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc          *Service
	secureCookie bool
}

// NewHandler creates a new auth Handler. secureCookie marks the session
// cookie Secure and should be set whenever the API is served over HTTPS.
func NewHandler(svc *Service, secureCookie bool) *Handler {
	return &Handler{svc: svc, secureCookie: secureCookie}
}

type registerRequest struct {
	Username string `json:"username" example:"alice"`
	Email    string `json:"email"    example:"alice@example.com"`
	Password string `json:"password" example:"s3cret"`
}

type loginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"s3cret"`
}

type accountBody struct {
	ID        string `json:"id"        example:"e7eedc79-0707-4fe4-8734-526b7ef13a7b"`
	Username  string `json:"username"  example:"alice"`
	Email     string `json:"email"     example:"alice@example.com"`
	CreatedAt string `json:"createdAt" example:"2026-02-27T14:48:34Z"`
}

type loginData struct {
	Username string `json:"username" example:"alice"`
}

// Register godoc
//
//	@Summary		Register new account
//	@Description	Create an account. Username and email must be unique.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		registerRequest	true	"Registration details"
//	@Success		201		{object}	response.Envelope{data=accountBody}
//	@Failure		400		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/users/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	switch {
	case req.Username == "":
		response.BadRequest(w, "username is mandatory")
		return
	case req.Password == "":
		response.BadRequest(w, "password is mandatory")
		return
	case req.Email == "":
		response.BadRequest(w, "email is mandatory")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		response.BadRequest(w, "invalid email address")
		return
	}

	a, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		response.Conflict(w, "username is already taken")
		return
	case errors.Is(err, ErrEmailTaken):
		response.Conflict(w, "email is already in use")
		return
	case errors.Is(err, ErrPasswordTooLong):
		response.BadRequest(w, "password is too long")
		return
	case err != nil:
		response.InternalError(w)
		return
	}

	response.Created(w, accountBody{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Login godoc
//
//	@Summary		Log in
//	@Description	Verify credentials and set the jwtToken session cookie, valid for one hour.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	response.Envelope{data=loginData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/users/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		response.BadRequest(w, "username or password must not be blank")
		return
	}

	t, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		response.Unauthorized(w, "invalid credentials")
		return
	}
	if err != nil {
		response.InternalError(w)
		return
	}

	http.SetCookie(w, h.sessionCookie(t, int(token.Validity.Seconds())))
	response.OK(w, loginData{Username: req.Username})
}

// Logout godoc
//
//	@Summary		Log out
//	@Description	Clear the jwtToken session cookie.
//	@Tags			auth
//	@Produce		json
//	@Security		CookieAuth
//	@Success		200	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Router			/users/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	// MaxAge < 0 is sent as Max-Age=0, which tells the browser to drop it.
	http.SetCookie(w, h.sessionCookie("", -1))
	response.OK(w, map[string]bool{"loggedOut": true})
}

func (h *Handler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
