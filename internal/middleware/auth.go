package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"flashcards-backend/internal/services"
)

const sessionKey contextKey = "session"

// Session is what a verified session token proves about its holder.
type Session struct {
	UserID   int64
	Username string
}

// SessionAuth issues short-lived tokens to clients whose Telegram init data
// checked out, so later calls do not need to resend it.
type SessionAuth struct {
	Secret []byte
	TTL    time.Duration
	now    func() time.Time
}

func NewSessionAuth(secret string, ttl time.Duration) *SessionAuth {
	return &SessionAuth{Secret: []byte(secret), TTL: ttl, now: time.Now}
}

// Issue creates an HS256 token for the verified init data.
func (a *SessionAuth) Issue(data *services.InitData) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.TTL)
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(data.UserID, 10),
		"username": data.Username,
		"exp":      expiresAt.Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies a token issued by Issue.
func (a *SessionAuth) Parse(tokenStr string) (*Session, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.Secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, err
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid subject %q", sub)
	}
	username, _ := claims["username"].(string)
	return &Session{UserID: userID, Username: username}, nil
}

// Middleware attaches the session for a valid Bearer token. Requests without
// an Authorization header pass through untouched; a bad token is rejected.
func (a *SessionAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		session, err := a.Parse(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "Session expired")
			} else {
				writeError(w, http.StatusUnauthorized, "Invalid session token")
			}
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession returns the session attached by Middleware, or nil.
func GetSession(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}
