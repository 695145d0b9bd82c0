package remote

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// TokenHolder is the auth collaborator's client side: it stores the current
// token, notifies the application when the remote issues a fresh one, and
// can tell ahead of time whether a JWT-shaped token is about to expire so
// the caller can re-authenticate proactively instead of burning a sync
// attempt on a guaranteed 401.
type TokenHolder struct {
	mu    sync.RWMutex
	token string
	onNew func(token string)
	log   logging.Logger
}

// NewTokenHolder builds a holder with an optional new-token callback. The
// callback runs synchronously on Set and must not call back into the holder.
func NewTokenHolder(onNew func(token string), log logging.Logger) *TokenHolder {
	if log == nil {
		log = logging.Nop()
	}
	return &TokenHolder{onNew: onNew, log: log}
}

// Token returns the current auth token, empty when not authenticated.
func (h *TokenHolder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Set installs a token. A non-empty token different from the current one
// triggers the new-token callback; setting the same token again is a no-op.
func (h *TokenHolder) Set(token string) {
	h.mu.Lock()
	changed := token != h.token
	h.token = token
	onNew := h.onNew
	h.mu.Unlock()

	if changed && token != "" && onNew != nil {
		onNew(token)
	}
}

// Clear drops the current token (logout, auth-required).
func (h *TokenHolder) Clear() {
	h.mu.Lock()
	h.token = ""
	h.mu.Unlock()
}

// Absorb installs the token carried by a response, if any.
func (h *TokenHolder) Absorb(authToken string) {
	if authToken != "" {
		h.Set(authToken)
	}
}

// ExpiresWithin reports whether the current token is a JWT that expires
// within leeway of now. Opaque (non-JWT) tokens and JWTs without an exp
// claim never report expiry; only the server can reject those.
//
// The token is parsed unverified: the holder is not a validator, it only
// reads the expiry the client itself was handed.
func (h *TokenHolder) ExpiresWithin(now time.Time, leeway time.Duration) bool {
	token := h.Token()
	if token == "" {
		return false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.Before(now.Add(leeway))
}
