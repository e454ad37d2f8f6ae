package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/api/shared"
	"github.com/voxnote/voxnote-api/internal/redact"
	"github.com/voxnote/voxnote-api/internal/service/auth"
)

// serviceCredentialHeader carries the shared credential presented by
// trusted backend collaborators instead of a user token.
const serviceCredentialHeader = "X-Service-Credential"

// AuthMiddleware authenticates requests with either a Bearer JWT (user
// scope) or the service credential header (system scope).
type AuthMiddleware struct {
	jwtService auth.JWTService
	verifier   auth.CredentialVerifier
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService, verifier auth.CredentialVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		verifier:   verifier,
	}
}

// Authenticate accepts either authentication form. JWT requests get the
// user ID on the context; service-credential requests get the service
// scope marker instead.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if credential := r.Header.Get(serviceCredentialHeader); credential != "" {
			m.authenticateService(w, r, next, credential)
			return
		}
		m.authenticateUser(w, r, next)
	})
}

// RequireService accepts only the service credential. Used for the
// administrative dispatch surface.
func (m *AuthMiddleware) RequireService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get(serviceCredentialHeader)
		if credential == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Service credential required")
			return
		}
		m.authenticateService(w, r, next, credential)
	})
}

func (m *AuthMiddleware) authenticateService(w http.ResponseWriter, r *http.Request, next http.Handler, credential string) {
	if err := m.verifier.Verify(credential); err != nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid service credential")
		return
	}
	ctx := shared.SetServiceScope(r.Context())
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (m *AuthMiddleware) authenticateUser(w http.ResponseWriter, r *http.Request, next http.Handler) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
		return
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
		return
	}

	claims, err := m.jwtService.ValidateToken(r.Context(), parts[1])
	if err != nil {
		switch err {
		case auth.ErrExpiredToken:
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
		case auth.ErrInvalidToken, auth.ErrWrongTokenType, auth.ErrTokenNotYetValid:
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
		default:
			slog.Error("failed to validate token", "error", redact.Error(err))
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
		}
		return
	}

	ctx := context.WithValue(r.Context(), shared.UserIDContextKey, claims.UserID)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// GetUserID extracts the user ID from the request context.
// Returns the user ID and a boolean indicating if it was found.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	return userID, ok
}
