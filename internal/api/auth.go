package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// APIKeyLookup resolves a SHA-256 key hash to the key's name. Empty name
// means the key is unknown.
type APIKeyLookup func(ctx context.Context, keyHash string) (name string, err error)

// AuthMiddleware accepts either an X-API-Key header or a Bearer JWT signed
// with the shared secret.
type AuthMiddleware struct {
	jwtSecret    []byte
	apiKeyLookup APIKeyLookup
}

func NewAuthMiddleware(jwtSecret string, apiKeyLookup APIKeyLookup) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret:    []byte(jwtSecret),
		apiKeyLookup: apiKeyLookup,
	}
}

func (a *AuthMiddleware) authenticate(r *http.Request) (string, error) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		if a.apiKeyLookup == nil {
			return "", fmt.Errorf("API key auth not configured")
		}
		name, err := a.apiKeyLookup(r.Context(), HashAPIKey(apiKey))
		if err != nil {
			return "", fmt.Errorf("API key lookup failed: %w", err)
		}
		if name == "" {
			return "", fmt.Errorf("invalid API key")
		}
		return name, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header or X-API-Key")
	}

	tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid JWT: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid JWT claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("JWT missing sub claim")
	}
	return sub, nil
}

// MutatingOnly enforces authentication on state-changing methods while
// leaving read endpoints open to the dashboard.
func (a *AuthMiddleware) MutatingOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if _, err := a.authenticate(r); err != nil {
			writeAPIError(w, http.StatusUnauthorized, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HashAPIKey returns the hex SHA-256 of a raw key, the form stored in the
// api_keys table.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
