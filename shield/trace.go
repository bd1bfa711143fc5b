package shield

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/hazyhaar/sosrelay/idgen"
	"github.com/hazyhaar/sosrelay/kit"
)

var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TraceGen generates trace IDs. Tests may replace it.
var TraceGen = idgen.Prefixed("tr_", idgen.Default)

// TraceID tags each request with a trace ID, reusing a well-formed incoming
// X-Trace-ID. The ID goes into the context (kit.WithTraceID), the response
// header and a per-request logger stored under LoggerKey.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if !traceIDPattern.MatchString(traceID) {
			traceID = TraceGen()
		}

		ctx := kit.WithTraceID(r.Context(), traceID)
		ctx = kit.WithTransport(ctx, "http")
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", ExtractIP(r),
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Info("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
