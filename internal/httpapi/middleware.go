package httpapi

import (
	"net/http"
	"strings"

	"github.com/haasonsaas/nexus/internal/auth"
	"github.com/haasonsaas/nexus/internal/engerrors"
	"github.com/haasonsaas/nexus/internal/ratelimit"
	"github.com/haasonsaas/nexus/pkg/models"
)

// sessionCookieName is the cookie carrying a session-authenticated user's
// JWT, per spec §6's "session cookie OR API key" auth model.
const sessionCookieName = "agime_session"

// authMiddleware resolves the caller from a session cookie, an
// Authorization: Bearer header, or an X-API-Key header, attaching the
// resolved user to the request context. Grounded on the teacher's gRPC
// interceptor (internal/auth/middleware.go) and its HTTP counterpart in
// internal/web/middleware.go, adapted to net/http.
func authMiddleware(service *auth.Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if service == nil || !service.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		if token := bearerToken(r); token != "" {
			if user, err := service.ValidateJWT(token); err == nil {
				next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
				return
			}
		}
		if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
			if user, err := service.ValidateJWT(cookie.Value); err == nil {
				next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
				return
			}
		}
		if key := apiKeyFromRequest(r); key != "" {
			if user, err := service.ValidateAPIKey(key); err == nil {
				next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
				return
			}
		}

		writeKindError(w, engerrors.PermissionDenied, "authentication required")
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.Header.Get("Api-Key")
}

// requireAdmin rejects non-owner/admin callers. Used for approve/reject,
// which spec §6 restricts to admins.
func requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			writeKindError(w, engerrors.PermissionDenied, "authentication required")
			return
		}
		if user.Role != "owner" && user.Role != "admin" {
			writeKindError(w, engerrors.PermissionDenied, "admin role required")
			return
		}
		next(w, r)
	}
}

// taskSubmitRateLimit is the spec's 10-requests-per-minute-per-user budget
// on task submission.
func taskSubmitRateLimitConfig() ratelimit.Config {
	return ratelimit.Config{RequestsPerSecond: 10.0 / 60.0, BurstSize: 10, Enabled: true}
}

// rateLimitMiddleware rejects requests once the caller's per-user bucket
// (keyed by the authenticated user id, falling back to remote addr) is
// exhausted.
func rateLimitMiddleware(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)
		if !limiter.Allow(key) {
			writeKindError(w, engerrors.Conflict, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user.ID
	}
	return r.RemoteAddr
}

// userOrAnonymous returns the request's authenticated user, or an empty
// anonymous user when auth is disabled.
func userOrAnonymous(r *http.Request) *models.User {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user
	}
	return &models.User{ID: "anonymous"}
}
