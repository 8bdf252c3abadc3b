package jwt

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const CookieName = "JWT"

type UserToken struct {
	UserID   string `json:"userID"`
	Remember bool   `json:"rem"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies the login cookie.
type Issuer struct {
	secret  []byte
	isHttps bool
	now     func() time.Time
}

func New(secret string, isHttps bool) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Issuer{secret: []byte(secret), isHttps: isHttps, now: time.Now}, nil
}

func (i *Issuer) CreateToken(rememberMe bool, userID string) (http.Cookie, error) {
	var tokenLifeTime time.Duration
	if rememberMe {
		tokenLifeTime = time.Hour * 24 * 7 * 4 // 4 weeks
	} else {
		tokenLifeTime = time.Hour * 24 // 1 day
	}

	currentTime := i.now().UTC()
	expirationDate := currentTime.Add(tokenLifeTime)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, UserToken{
		UserID:   userID,
		Remember: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expirationDate),
		},
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return http.Cookie{}, err
	}

	cookie := http.Cookie{
		Name:     CookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Secure:   i.isHttps,
		SameSite: http.SameSiteLaxMode,
	}

	if rememberMe {
		cookie.Expires = expirationDate
	}

	return cookie, nil
}

// VerifyToken checks signature and expiry and returns the claims.
func (i *Issuer) VerifyToken(tokenString string) (UserToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserToken{}, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return UserToken{}, err
	}

	claims, ok := token.Claims.(*UserToken)
	if !ok || claims.UserID == "" {
		return UserToken{}, errors.New("invalid token")
	}
	return *claims, nil
}

// ExpiredCookie removes the login cookie from the browser.
func ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	}
}
