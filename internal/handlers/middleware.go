package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"desacordo-backend/internal/jwt"
)

type UserIDKeyType struct{}

const userCacheTTL = 15 * time.Minute

func userIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKeyType{}).(string)
	return userID
}

func userExistsKey(userID string) string {
	return fmt.Sprintf("user_exists:%s", userID)
}

// userExists asks the cache first and falls back to the accounts table.
func (h *Handlers) userExists(ctx context.Context, userID string) (bool, error) {
	key := userExistsKey(userID)

	value, err := h.cache.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if value != "" {
		h.sugar.Debugf("User ID %s was found in cache", userID)
		return true, nil
	}

	userFound, err := h.accounts.Exists(ctx, userID)
	if err != nil {
		return false, err
	}
	if !userFound {
		h.sugar.Infof("User ID %s was not found in database", userID)
		return false, nil
	}

	if err := h.cache.Set(ctx, key, "y", userCacheTTL); err != nil {
		return false, err
	}
	h.sugar.Debugf("User ID %s was found in database and was cached", userID)
	return true, nil
}

func (h *Handlers) UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtCookie, err := r.Cookie(jwt.CookieName)
		if err != nil {
			h.sugar.Debug(err)
			switch {
			case errors.Is(err, http.ErrNoCookie):
				http.Error(w, "No jwt cookie was provided", http.StatusUnauthorized)
			default:
				http.Error(w, "Couldn't read jwt cookie", http.StatusInternalServerError)
			}
			return
		}

		userToken, err := h.issuer.VerifyToken(jwtCookie.Value)
		if err != nil {
			h.sugar.Debug(err)
			http.SetCookie(w, jwt.ExpiredCookie())
			http.Error(w, "Couldn't verify JWT", http.StatusUnauthorized)
			return
		}

		userFound, err := h.userExists(r.Context(), userToken.UserID)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		// the account is gone but the browser kept its token
		if !userFound {
			http.SetCookie(w, jwt.ExpiredCookie())
			http.Error(w, "", http.StatusUnauthorized)
			return
		}

		// renew JWT and cookie
		if time.Since(userToken.IssuedAt.Time) >= userCacheTTL {
			updatedCookie, err := h.issuer.CreateToken(userToken.Remember, userToken.UserID)
			if err != nil {
				h.sugar.Error(err)
				http.Error(w, "Couldn't renew cookie", http.StatusInternalServerError)
				return
			}

			http.SetCookie(w, &updatedCookie)
		}

		// this passes the authenticated user's ID to next handler
		ctx := context.WithValue(r.Context(), UserIDKeyType{}, userToken.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
