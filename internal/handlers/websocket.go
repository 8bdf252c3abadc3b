package handlers

import (
	"errors"
	"net/http"

	"desacordo-backend/internal/auth"
	"desacordo-backend/internal/jwt"
)

func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	if _, err := h.auth.Restore(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrUnknownAccount) {
			// the cached existence flag outlived the account
			if err := h.cache.Del(r.Context(), userExistsKey(userID)); err != nil {
				h.sugar.Error(err)
			}
			http.SetCookie(w, jwt.ExpiredCookie())
			http.Error(w, "", http.StatusUnauthorized)
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.gateway.ServeWS(w, r, userID)
}
