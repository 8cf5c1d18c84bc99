package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	// sessionCookieName carries the signed session ID
	sessionCookieName = "utm_session"
	sessionIssuer     = "utm-app"
)

// SessionCookies issues and verifies HMAC-signed session cookies. The
// session ID travels as the token's jti claim.
type SessionCookies struct {
	secret  []byte
	maxAge  time.Duration
	nowFunc func() time.Time
}

// NewSessionCookies builds a signer. An empty secret gets a random
// per-process secret, so cookies do not survive a restart.
func NewSessionCookies(secret string, maxAge time.Duration) (*SessionCookies, error) {
	key := []byte(secret)
	if len(key) == 0 {
		s, err := generateRandomString(32)
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate session secret")
		}
		key = []byte(s)
	}
	return &SessionCookies{secret: key, maxAge: maxAge, nowFunc: time.Now}, nil
}

func (c *SessionCookies) Sign(sessionID string) (string, error) {
	now := c.nowFunc()
	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign session cookie")
	}
	return signed, nil
}

// Verify returns the session ID carried by a cookie value.
func (c *SessionCookies) Verify(value string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(value, &claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	)
	if err != nil {
		return "", errors.Wrap(err, "invalid session cookie")
	}
	if claims.ID == "" {
		return "", errors.New("session cookie has no session id")
	}
	return claims.ID, nil
}

func (s *Server) SetSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) error {
	value, err := s.cookies.Sign(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cookies.maxAge.Seconds()),
	})
	return nil
}

// sessionIDFromCookie returns the verified session ID, or "" when the request
// has no valid cookie.
func (s *Server) sessionIDFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	sessionID, err := s.cookies.Verify(cookie.Value)
	if err != nil {
		return ""
	}
	return sessionID
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
