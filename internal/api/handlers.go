package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avelasqz/multichat-back/internal/auth"
	"github.com/avelasqz/multichat-back/internal/contextkey"
	"github.com/avelasqz/multichat-back/internal/identity"
	"github.com/avelasqz/multichat-back/internal/models"
	"github.com/avelasqz/multichat-back/internal/utils"
)

// AuthResponse represents auth response
type AuthResponse struct {
	Token     string       `json:"token"`
	User      *models.User `json:"user"`
	ExpiresIn int          `json:"expires_in"`
}

// SessionHandler trades identity-service credentials for a locally signed
// JWT that the REST endpoints accept. The socket path does not use it; the
// REST surface does, so clients authenticate against the user service once.
func (r *Router) SessionHandler(w http.ResponseWriter, req *http.Request) {
	var creds models.AuthCredentials
	if err := json.NewDecoder(req.Body).Decode(&creds); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := r.resolver.Authenticate(req.Context(), creds)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			utils.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		r.logger.Error(req.Context(), "identity service error during session exchange: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "Identity service unavailable")
		return
	}

	token, err := r.jwtMgr.GenerateToken(user.ID, user.Username, user.Email, 24*time.Hour)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	utils.RespondJSON(w, http.StatusOK, AuthResponse{
		Token:     token,
		User:      user,
		ExpiresIn: 86400,
	})
}

// HealthzHandler returns API health status
func (r *Router) HealthzHandler(w http.ResponseWriter, req *http.Request) {
	if err := r.db.Health(req.Context()); err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "Database unhealthy")
		return
	}

	if err := r.cache.GetClient().Ping(req.Context()).Err(); err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "Redis unhealthy")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AuthMiddleware validates JWT and extracts user from context
func (r *Router) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tokenString, err := auth.ExtractTokenFromHeader(req.Header.Get("Authorization"))
		if err != nil {
			utils.RespondError(w, http.StatusUnauthorized, "Authorization token required")
			return
		}

		claims, err := r.jwtMgr.ValidateToken(tokenString)
		if err != nil {
			utils.RespondError(w, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
			return
		}

		ctx := context.WithValue(req.Context(), contextkey.ContextKeyUserID, claims.UserID)
		req = req.WithContext(ctx)
		next.ServeHTTP(w, req)
	})
}

// getUserIDFromContext is a helper to extract userID from context
func getUserIDFromContext(ctx context.Context) (uint32, error) {
	userID, ok := ctx.Value(contextkey.ContextKeyUserID).(uint32)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
