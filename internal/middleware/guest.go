package middleware

import (
	"context"
	"encoding/hex"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// GuestCookie holds the anonymous voting session token
const GuestCookie = "guest_session"

const (
	guestKey       contextKey = "guest"
	guestCookieTTL            = 365 * 24 * time.Hour
)

// Guest identifies an anonymous client
type Guest struct {
	Token         string
	IPHash        string
	UserAgentHash string
}

// Fingerprinter hashes client attributes with a server-side key so raw IPs are never stored
type Fingerprinter struct {
	key []byte
}

func NewFingerprinter(key string) *Fingerprinter {
	return &Fingerprinter{key: []byte(key)}
}

// Hash returns the hex blake2b-256 digest of value, empty for empty input
func (f *Fingerprinter) Hash(value string) string {
	if value == "" {
		return ""
	}
	h, err := blake2b.New256(f.key)
	if err != nil {
		// only possible for keys over 64 bytes, which config validation rejects
		panic(err)
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

// GuestSession ensures every request carries a guest session token, issuing a cookie when missing
func GuestSession(fp *Fingerprinter, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(GuestCookie); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				token = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     GuestCookie,
					Value:    token,
					Path:     "/",
					MaxAge:   int(guestCookieTTL.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			guest := Guest{
				Token:         token,
				IPHash:        fp.Hash(clientIP(r)),
				UserAgentHash: fp.Hash(r.UserAgent()),
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), guestKey, guest)))
		})
	}
}

// GetGuest returns the guest attached by GuestSession
func GetGuest(ctx context.Context) (Guest, bool) {
	g, ok := ctx.Value(guestKey).(Guest)
	return g, ok
}

// GuestToken reads the session cookie without issuing one
func GuestToken(r *http.Request) string {
	c, err := r.Cookie(GuestCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
