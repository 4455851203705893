package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

type apiKey struct {
	secret []byte
	id     string
}

// Auth guards operator routes. A request must carry one of keys, either as a
// Bearer token or in the X-API-Key header. More than one key may be active
// while the operator key is rotated. Empty keys are skipped, and with none
// left the check is disabled.
//
// The fingerprint of the matching key is attached to the request context as
// its actor, so audit entries name the key that made the call.
func Auth(keys ...string) func(http.Handler) http.Handler {
	var active []apiKey
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			active = append(active, apiKey{secret: []byte(k), id: KeyID(k)})
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(active) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing operator key")
				return
			}
			id, ok := matchKey(active, token)
			if !ok {
				writeUnauthorized(w, "invalid operator key")
				return
			}

			next.ServeHTTP(w, r.WithContext(domain.WithActor(r.Context(), id)))
		})
	}
}

// KeyID is the fingerprint recorded for an operator key: "key:" followed by
// the first four bytes of its SHA-256 in hex.
func KeyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key:" + hex.EncodeToString(sum[:4])
}

// matchKey compares token against every key, without stopping at the first
// match.
func matchKey(keys []apiKey, token string) (string, bool) {
	matched := ""
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k.secret, []byte(token)) == 1 {
			matched = k.id
		}
	}
	return matched, matched != ""
}

// extractToken reads the Bearer token, falling back to X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeUnauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="betengine-operator"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": domain.ErrUnauthorized.Error() + ": " + reason,
	})
}
