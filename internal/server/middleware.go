package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
)

const middlewareLogPrefix = "server:middleware"

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error(fmt.Sprintf("%s - panic recovered: %s %s request_id=%s: %v",
					middlewareLogPrefix, r.Method, r.URL.Path, requestIDFromContext(r.Context()), rec))
				writeErrorCode(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// accessLogMiddleware logs one line per request with status, size and duration.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		line := fmt.Sprintf("%s - %s %s status=%d bytes=%d duration_ms=%d request_id=%s",
			middlewareLogPrefix, r.Method, r.URL.Path, m.Code, m.Written, m.Duration.Milliseconds(), requestIDFromContext(r.Context()))
		switch {
		case m.Code >= 500:
			slog.Error(line)
		case m.Code >= 400:
			slog.Warn(line)
		default:
			slog.Debug(line)
		}
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}
