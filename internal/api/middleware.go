/**
 * @description
 * This file contains custom middleware for the HTTP router. Staff routes are
 * protected with HMAC-signed JWTs issued by the identity service; the public
 * payment routes carry fixed-window rate limits backed by Redis.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: Token parsing and claim validation.
 * - internal/app: The distributed rate limiter.
 */

package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rentiva/settlement-service/internal/app"
)

// StaffIDContextKey is a custom type for the context key to avoid collisions.
type StaffIDContextKey string

const staffIDKey StaffIDContextKey = "staffID"

// StaffAuthMiddleware validates HMAC-signed staff JWTs and stores the staff
// subject on the request context.
func StaffAuthMiddleware(secret, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			if !token.Valid || claims.Subject == "" {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), staffIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetStaffID retrieves the authenticated staff subject from the context.
func GetStaffID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(staffIDKey).(string)
	return id, ok
}

// RateLimitMiddleware throttles a route group per client IP using the
// shared limiter. A nil limiter disables throttling.
func RateLimitMiddleware(limiter app.RateLimiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, clientIP(r), limit, window)
			if err != nil {
				// A broken limiter must not take the payment path down.
				log.Printf("level=warn component=api msg=\"rate limiter unavailable\" scope=%s err=%v", scope, err)
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
