package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/avelasqz/multichat-back/internal/contextkey"
)

// RequestIDMiddleware tags every request with a unique ID. An incoming
// X-Request-ID is honored when it parses, so callers can correlate across
// services.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestID, err := uuid.Parse(req.Header.Get("X-Request-ID"))
		if err != nil {
			requestID = uuid.New()
		}
		ctx := context.WithValue(req.Context(), contextkey.ContextKeyRequestID, requestID)
		req = req.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID.String())
		next.ServeHTTP(w, req)
	})
}
