// Package middleware holds the HTTP middlewares of the health and metrics server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bulkdl/internal/observability"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key of the request id.
const RequestIDKey contextKey = "requestID"

const (
	HeaderXRequestID = "X-Request-ID"
)

// RequestLog is the request summary written by Logger.
type RequestLog struct {
	Method        string `json:"method"`
	URI           string `json:"uri"`
	RemoteAddr    string `json:"remote_addr"`
	Proto         string `json:"proto"`
	ContentLength int64  `json:"content_length"`
	Status        int    `json:"status"`
	Duration      string `json:"duration"`
}

// statusWriter remembers the status code and body size written through it.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}

	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(b)
	w.size += n

	return n, err
}

// code returns the written status; a handler that wrote nothing answered 200.
func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}

	return w.status
}

func wrap(w http.ResponseWriter) *statusWriter {
	if sw, ok := w.(*statusWriter); ok {
		return sw
	}

	return &statusWriter{ResponseWriter: w}
}

// Recoverer turns a handler panic into a 500 unless the response has already started.
// http.ErrAbortHandler is re-raised.
func Recoverer(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := wrap(w)

			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}

				if rvr == http.ErrAbortHandler { //nolint:errorlint
					panic(rvr)
				}

				log.ErrorContext(r.Context(), "handler panic", slog.Any("panic", rvr), slog.String("uri", r.RequestURI))

				if sw.status == 0 {
					http.Error(sw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

// RequestID propagates X-Request-ID or generates one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderXRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, reqID)
		w.Header().Set(HeaderXRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger writes one debug line per request after it completes.
func Logger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := wrap(w)

			next.ServeHTTP(sw, r)

			reqID, _ := r.Context().Value(RequestIDKey).(string)

			log.DebugContext(r.Context(), "http request",
				slog.String("request_id", reqID),
				slog.Any("request", RequestLog{
					Method:        r.Method,
					URI:           r.RequestURI,
					RemoteAddr:    r.RemoteAddr,
					Proto:         r.Proto,
					ContentLength: r.ContentLength,
					Status:        sw.code(),
					Duration:      time.Since(start).String(),
				}))
		})
	}
}

// Metrics records method, matched pattern, status and latency of every request.
func Metrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := wrap(w)

			next.ServeHTTP(sw, r)

			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}

			m.RecordHTTPRequest(r.Method, path, sw.code(), time.Since(start), sw.size)
		})
	}
}
