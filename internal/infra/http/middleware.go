package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
)

// TraceID adopts the caller's X-Request-ID when it looks sane and mints one
// otherwise. The id is echoed back and carried in the context logger fields.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get(requestIDHeader)
		if tid == "" || len(tid) > maxRequestIDLen {
			tid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, tid)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), tid)))
	})
}

// RequestLog logs one line per request with the matched route pattern, so
// ids in the path do not explode the log cardinality.
func RequestLog(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			l := logging.With(r.Context(), logger)
			ev := l.Info()
			if status >= http.StatusInternalServerError {
				ev = l.Warn()
			}
			ev.Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http_request")
		})
	}
}

// Recover turns a handler panic into a 500 JSON body. An aborted handler is
// re-panicked so net/http can drop the connection.
func Recover(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				l := logging.With(r.Context(), logger)
				l.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("panic recovered")
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
