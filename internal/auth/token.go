package auth

import (
	"net/http"
	"strings"
)

// DefaultHeader is the handshake header that carries the bearer token.
const DefaultHeader = "authentication"

// QueryParam is the fallback for browser clients, which cannot attach custom
// headers to a WebSocket handshake.
const QueryParam = "token"

// ExtractToken reads the token from the named header, stripping an optional
// "Bearer " prefix, and falls back to the token query parameter.
func ExtractToken(r *http.Request, header string) (string, error) {
	if header == "" {
		header = DefaultHeader
	}

	if raw := strings.TrimSpace(r.Header.Get(header)); raw != "" {
		const bearerPrefix = "bearer "
		if len(raw) > len(bearerPrefix) && strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
			raw = strings.TrimSpace(raw[len(bearerPrefix):])
		}
		if raw != "" {
			return raw, nil
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get(QueryParam)); token != "" {
		return token, nil
	}

	return "", ErrMissingToken
}
