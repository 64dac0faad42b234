package rpcserver

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// ControllerAuth verifies bearer tokens against a single process-wide
// secret, for the "/canonical" endpoint.
type ControllerAuth struct {
	secret []byte
}

// NewControllerAuth constructs a ControllerAuth from the raw secret bytes.
func NewControllerAuth(secret []byte) *ControllerAuth { return &ControllerAuth{secret: secret} }

// Middleware rejects requests without a valid bearer token signed by the
// controller secret.
func (a *ControllerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := bearerToken(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := parseHS256(tok, a.secret); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientAuth verifies bearer tokens against N named secrets, for the "/"
// endpoint. A token's "id" claim selects which secret to try first; if
// absent or unrecognized, every secret is tried in turn so a follower that
// doesn't set "id" still authenticates as long as some secret matches.
type ClientAuth struct {
	secrets map[string][]byte
	all     [][]byte
}

// NewClientAuth constructs a ClientAuth from a name->secret map.
func NewClientAuth(secrets map[string][]byte) *ClientAuth {
	all := make([][]byte, 0, len(secrets))
	for _, s := range secrets {
		all = append(all, s)
	}
	return &ClientAuth{secrets: secrets, all: all}
}

// Middleware rejects requests without a bearer token signed by any
// configured client secret.
func (a *ClientAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := bearerToken(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if id, ok := unverifiedIDClaim(tok); ok {
			if secret, ok := a.secrets[id]; ok {
				if _, err := parseHS256(tok, secret); err == nil {
					next.ServeHTTP(w, r)
					return
				}
			}
		}

		for _, secret := range a.all {
			if _, err := parseHS256(tok, secret); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", errNoBearerToken
	}
	return strings.TrimPrefix(h, prefix), nil
}

func parseHS256(tokenString string, secret []byte) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigningMethod
		}
		return secret, nil
	})
}

// unverifiedIDClaim extracts the "id" claim from a token without verifying
// its signature, purely to pick which secret to try first.
func unverifiedIDClaim(tokenString string) (string, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return "", false
	}
	id, ok := claims["id"].(string)
	return id, ok
}
