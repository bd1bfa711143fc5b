// CLAUDE:SUMMARY HTTP middleware for the relay API: security headers, JSON body limit, trace IDs with per-request logger, rate limiting, bearer auth.
// Package shield is the middleware stack in front of the relay API.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack() {
//	    r.Use(mw)
//	}
//	r.With(shield.BearerAuth(hash)).Post("/v1/alerts", h)
package shield

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// APIStack returns the middleware every relay route gets, outermost first:
// SecurityHeaders → MaxJSONBody → TraceID.
func APIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(64 * 1024),
		TraceID,
	}
}

// WriteError writes {"error": msg} with status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
