package reporter

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig carries the optional HMAC secret and claim values used to
// authenticate against the Status Dashboard. A nil Secret means no
// Authorization header is sent at all.
type AuthConfig struct {
	Secret             *string
	JWTPreferredUsername *string
	JWTGroup             *string
}

// buildAuthHeader signs an HS256 JWT over the configured claims and
// returns the header set to attach to every dashboard request. It
// mirrors the original "stackmon":"dummy" placeholder claim only in
// shape: the claims here are the operationally meaningful ones the
// dashboard actually checks.
func buildAuthHeader(cfg AuthConfig) (http.Header, error) {
	headers := http.Header{}
	if cfg.Secret == nil {
		return headers, nil
	}

	claims := jwt.MapClaims{}
	if cfg.JWTPreferredUsername != nil {
		claims["preferred_username"] = *cfg.JWTPreferredUsername
	}
	if cfg.JWTGroup != nil {
		claims["groups"] = []string{*cfg.JWTGroup}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(*cfg.Secret))
	if err != nil {
		return nil, err
	}
	headers.Set("Authorization", "Bearer "+signed)
	return headers, nil
}
