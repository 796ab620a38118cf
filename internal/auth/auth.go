// Package auth implements the bearer-token gate shared by the HTTP and
// WebSocket surfaces.
package auth

import (
	"net/http"
	"strings"
)

// bearerSubprotocol is the negotiated WebSocket subprotocol name used to
// carry a token when no Authorization header is available to the client
// (browsers cannot set arbitrary headers on a WebSocket handshake).
const bearerSubprotocol = "auth.bearer.v1"

// CheckHTTP reports whether r carries a matching `Authorization: Bearer
// <token>` header.
func CheckHTTP(r *http.Request, token string) bool {
	return extractBearer(r.Header.Get("Authorization")) == token && token != ""
}

// CheckWebSocket authenticates a WebSocket upgrade request, trying the
// Authorization header first and then the Sec-WebSocket-Protocol
// comma-separated list for the consecutive pair (auth.bearer.v1, <token>).
// On a subprotocol match, negotiatedSubprotocol is non-empty and must be
// echoed back by the caller's Upgrader.Subprotocols negotiation.
func CheckWebSocket(r *http.Request, token string) (ok bool, negotiatedSubprotocol string) {
	if token == "" {
		return false, ""
	}
	if extractBearer(r.Header.Get("Authorization")) == token {
		return true, ""
	}

	raw := r.Header.Get("Sec-WebSocket-Protocol")
	if raw == "" {
		return false, ""
	}
	entries := strings.Split(raw, ",")
	for i := range entries {
		entries[i] = strings.TrimSpace(entries[i])
	}
	for i := 0; i+1 < len(entries); i++ {
		if entries[i] == bearerSubprotocol && entries[i+1] == token {
			return true, bearerSubprotocol
		}
	}
	return false, ""
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
