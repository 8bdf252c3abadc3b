package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"desacordo-backend/internal/auth"
	"desacordo-backend/internal/jwt"
)

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	type Login struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var login Login
	if err := json.NewDecoder(r.Body).Decode(&login); err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	user, err := h.auth.Login(r.Context(), login.Email, login.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.sugar.Debug(err)
			http.Error(w, "", http.StatusUnauthorized)
		} else {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	cookie, err := h.issuer.CreateToken(r.URL.Query().Get("rememberMe") == "true", user.ID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &cookie)
	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var registration auth.Registration
	if err := json.NewDecoder(r.Body).Decode(&registration); err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	user, err := h.auth.Register(r.Context(), registration)
	if err != nil {
		var fieldErrors auth.FieldErrors
		switch {
		case errors.As(err, &fieldErrors):
			// sends back 400 with the form field errors
			h.writeJSON(w, http.StatusBadRequest, fieldErrors)
		case errors.Is(err, auth.ErrAlreadyExists):
			h.writeJSON(w, http.StatusConflict, map[string]string{"email": "already_exists"})
		default:
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	cookie, err := h.issuer.CreateToken(false, user.ID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &cookie)
	h.writeJSON(w, http.StatusCreated, user)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, jwt.ExpiredCookie())
	w.WriteHeader(http.StatusNoContent)
}
