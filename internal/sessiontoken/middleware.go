// Package sessiontoken identifies browser sessions with a signed cookie. It does not
// authenticate users; the token only proves the session id was issued by this server.
package sessiontoken

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session token.
const CookieName = "mri_session"

const issuer = "mri-check"

type contextKey string

const sessionIDKey contextKey = "sessionID"

// SessionID retrieves the session id placed in ctx by Middleware.
func SessionID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(sessionIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithSessionID returns a context carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// Issuer signs and verifies session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer using HS256 with secret.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(strings.TrimSpace(secret)), ttl: ttl, now: time.Now}
}

// Sign returns a token for sessionID.
func (i *Issuer) Sign(sessionID string) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse verifies token and returns its session id.
func (i *Issuer) Parse(token string) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("missing session secret")
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid session token")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", errors.New("invalid session id")
	}
	return claims.Subject, nil
}

// Middleware attaches a session id to every request, minting a new session when the cookie is
// missing, expired or forged.
func Middleware(i *Issuer, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := ""
		if token, err := c.Cookie(CookieName); err == nil && token != "" {
			if id, err := i.Parse(token); err == nil {
				sessionID = id
			}
		}

		if sessionID == "" {
			sessionID = uuid.NewString()
			token, err := i.Sign(sessionID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unable to start session"})
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CookieName, token, int(i.ttl.Seconds()), "/", "", secure, true)
		}

		c.Request = c.Request.WithContext(WithSessionID(c.Request.Context(), sessionID))
		c.Set(string(sessionIDKey), sessionID)
		c.Next()
	}
}
