package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AppClaims defines the handshake JWT claims. Beside the standard subject
// (user id) the token must carry the tenant and role claims; the connection
// is rejected when any of them is absent. Incomplete identity must never be
// silently defaulted, or notifications would be mis-routed.
type AppClaims struct {
	TenantID int    `json:"tenantId"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware verifies the handshake token before the websocket
// upgrade. The token is read from the 'token' query parameter (browser
// websocket clients cannot set headers) or a bearer Authorization header.
func NewAuthMiddleware(logger *slog.Logger, jwtSecret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				// something went wrong with previous middlewares
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			tokenString := r.URL.Query().Get("token")
			if tokenString == "" {
				tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if tokenString == "" {
				logger.Warn("Handshake token missing", slog.String("ip", reqMeta.IP))
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}

			token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("Invalid handshake token", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(*AppClaims)
			if !ok {
				logger.Error("Failed to parse custom JWT claims", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Hard-fail contract: all identity claims are mandatory.
			if claims.Subject == "" || claims.TenantID == 0 || claims.Role == "" {
				logger.Warn("Handshake claims incomplete",
					slog.String("ip", reqMeta.IP),
					slog.String("sub", claims.Subject),
					slog.Int("tenantId", claims.TenantID),
					slog.String("role", claims.Role),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.Claims.UserID = claims.Subject
			reqMeta.Claims.TenantID = claims.TenantID
			reqMeta.Claims.Role = claims.Role
			next.ServeHTTP(w, r)
		})
	}
}
