package middleware

import (
	"errors"
	"net/http"
	"strings"

	"referralnet-backend/pkg/auth"
	"referralnet-backend/pkg/common"
	apperrors "referralnet-backend/pkg/errors"

	"go.uber.org/zap"
)

// Authenticate validates the bearer token and stores the claims on the
// request context
func Authenticate(validator *auth.JWTValidator, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				respondUnauthorized(w, "Missing authentication token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					respondUnauthorized(w, "Token has expired")
				case errors.Is(err, auth.ErrInvalidSignature):
					respondUnauthorized(w, "Invalid token signature")
				default:
					respondUnauthorized(w, "Invalid token")
				}
				return
			}

			logger.Debug("Request authenticated",
				zap.String("userId", claims.UserID),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole creates middleware that requires any of the given roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				respondUnauthorized(w, "Unauthorized")
				return
			}

			for _, role := range roles {
				if claims.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			common.RespondError(w, http.StatusForbidden, common.ErrorInfo{
				Type:    string(apperrors.ErrorTypeForbidden),
				Code:    "INSUFFICIENT_ROLE",
				Message: "Insufficient permissions",
			})
		})
	}
}

// extractToken reads the Authorization header, with or without the Bearer prefix
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(header)
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	common.RespondError(w, http.StatusUnauthorized, common.ErrorInfo{
		Type:    string(apperrors.ErrorTypeUnauthorized),
		Code:    string(apperrors.ErrorTypeUnauthorized),
		Message: message,
	})
}
