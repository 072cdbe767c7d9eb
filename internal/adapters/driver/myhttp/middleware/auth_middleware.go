package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"ridelink/internal/adapters/driver/myhttp/handle"

	"github.com/golang-jwt/jwt"
)

type AuthMiddleware struct {
	accessSecret string
}

func NewAuthMiddleware(accessSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		accessSecret: accessSecret,
	}
}

func (am *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString != "" {
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		} else {
			// websocket clients cannot set headers, they pass the token as a query param
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Empty JWT-Token"))
			return
		}
		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			return []byte(am.accessSecret), nil
		})
		if err != nil {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Failed to parse JWT-Token"))
			return
		}

		if !token.Valid {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Invalid JWT-Token"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Invalid claims"))
			return
		}

		userId, ok := claims["user_id"].(string)
		if !ok {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("User id not found in token"))
			return
		}

		role, ok := claims["role"].(string)
		if !ok {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Role not found in token"))
			return
		}

		switch role {
		case "PASSENGER", "DRIVER", "ADMIN":
		default:
			handle.JsonError(w, http.StatusForbidden, fmt.Errorf("Unknown role %q", role))
			return
		}

		r.Header.Set("X-UserId", userId)
		r.Header.Set("X-Role", role)

		next.ServeHTTP(w, r)
	})
}
