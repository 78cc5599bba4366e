package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// bearerToken returns the raw bearer credential from the Authorization
// header, or "" when the request carries none. It is forwarded on
// remote line dispatch.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// ExtractClientID reads the caller identity out of the bearer token's
// payload claims, trying client_id, then appid, then name. The token
// is not verified here; upstream gateways own validation, this value
// only feeds logging and audit.
func ExtractClientID(r *http.Request) string {
	const unknown = "unknown"

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return unknown
	}
	token := strings.TrimPrefix(header, "Bearer ")

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return unknown
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return unknown
	}

	var claims struct {
		ClientID string `json:"client_id"`
		AppID    string `json:"appid"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return unknown
	}

	switch {
	case claims.ClientID != "":
		return claims.ClientID
	case claims.AppID != "":
		return claims.AppID
	case claims.Name != "":
		return claims.Name
	default:
		return unknown
	}
}
