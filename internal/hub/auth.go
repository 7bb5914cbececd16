package hub

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// claims is the minimal bearer-token shape the push channel trusts: azp
// names the organization a relay authenticates as (§4.G). Issuing these
// tokens is out of scope here (no Keycloak server is implemented); the hub
// only verifies and reads them.
type claims struct {
	jwt.RegisteredClaims
	Azp string `json:"azp"`
}

// parseBearerToken verifies an HS256 token against secret and returns the
// azp claim identifying the caller's organization.
func parseBearerToken(header, secret string) (string, error) {
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == header {
		return "", fmt.Errorf("hub: missing bearer prefix")
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("hub: parse token: %w", err)
	}
	if c.Azp == "" {
		return "", fmt.Errorf("hub: token missing azp claim")
	}
	return c.Azp, nil
}
