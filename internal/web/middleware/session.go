package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/stylemate/internal/session"
)

const (
	sessionCookieName = "stylemate_session"
	sessionHeaderName = "X-Session-ID"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionBinder ties browser clients to capture sessions through a signed cookie.
type SessionBinder struct {
	secret   []byte
	sessions *session.Manager
	maxAge   time.Duration
}

// NewSessionBinder creates a binder. Cookies live as long as idle sessions do.
func NewSessionBinder(secret string, sessions *session.Manager, maxAge time.Duration) *SessionBinder {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "stylemate-dev-secret-change-in-production"
	}
	return &SessionBinder{
		secret:   []byte(secret),
		sessions: sessions,
		maxAge:   maxAge,
	}
}

// Bind is middleware that resolves the caller's session, creating one when
// the cookie is missing, forged or expired.
func (b *SessionBinder) Bind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := b.sessionIDFromRequest(r)
		s := b.sessions.GetOrCreate(id)
		if s.ID != id {
			b.SetSessionCookie(w, s.ID)
		}
		w.Header().Set(sessionHeaderName, s.ID)
		next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), s)))
	})
}

// sessionIDFromRequest returns the verified session ID, or "".
func (b *SessionBinder) sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	id, signature, ok := strings.Cut(cookie.Value, ".")
	if !ok || !b.verifySignature(id, signature) {
		return ""
	}
	return id
}

// SetSessionCookie sets the signed session cookie on the response
func (b *SessionBinder) SetSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id + "." + b.signData(id),
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(b.maxAge.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (b *SessionBinder) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// signData creates an HMAC signature for data
func (b *SessionBinder) signData(data string) string {
	h := hmac.New(sha256.New, b.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (b *SessionBinder) verifySignature(data, signature string) bool {
	expected := b.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *session.Session {
	s, ok := ctx.Value(sessionContextKey).(*session.Session)
	if !ok {
		return nil
	}
	return s
}

// SetSessionInContext adds a session to the context.
// This is primarily for testing - use Bind in production.
func SetSessionInContext(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}
