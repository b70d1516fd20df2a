package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/paperfeed/internal/apperr"
	"github.com/starford/paperfeed/internal/userdb"
)

// Register handles POST /auth/register and logs the new user in.
//
//	@Summary		Create an account
//	@Tags			auth
//	@Accept			json
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			body	body		RegisterRequest	true	"Account"
//	@Success		201		{object}	userdb.User
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	err := decodeBody(w, r, &req, map[string]*string{
		"username": &req.Username,
		"email":    &req.Email,
		"password": &req.Password,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	user, err := h.Users.Create(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("username or email already registered"))
			return
		}
		h.logger.Error("create user failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.logger.Info("user registered", slog.Int64("user_id", user.ID))

	if !h.startSession(w, r, user) {
		return
	}
	if !isJSON(r) {
		http.Redirect(w, r, "/keys", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /auth/login.
//
//	@Summary		Log in
//	@Tags			auth
//	@Accept			json
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	userdb.User
//	@Failure		401		{object}	errResponse
//	@Router			/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	err := decodeBody(w, r, &req, map[string]*string{
		"username": &req.Username,
		"password": &req.Password,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	user, err := h.Users.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid username or password"))
			return
		}
		h.logger.Error("authenticate failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	if !isJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Logout handles POST /auth/logout.
//
//	@Summary		Log out
//	@Tags			auth
//	@Success		204
//	@Success		303
//	@Router			/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Sessions.Rotate(w, r); err != nil {
		h.logger.Error("end session failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if !isJSON(r) && r.Header.Get("Accept") != "application/json" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startSession moves the request to a fresh session bound to user.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *userdb.User) bool {
	id, err := h.Sessions.Rotate(w, r)
	if err == nil {
		err = h.Sessions.BindUser(id, user.ID)
	}
	if err != nil {
		h.logger.Error("start session failed",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return false
	}
	return true
}
