package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Rei0925/MFWeb/internal/logging"
)

// HTTPLoggingMiddleware logs API requests with a level chosen by status code.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	logRequest(ctx.Context(), requestLog{
		method:    ctx.Method(),
		path:      ctx.URL().Path,
		query:     ctx.URL().RawQuery,
		userAgent: ctx.Header("User-Agent"),
		remote:    ctx.RemoteAddr(),
		status:    ctx.Status(),
		duration:  time.Since(start),
	})
}

// LogRequests wraps a plain handler with the same request log. Long-lived
// responses such as the multipart stream are logged when they end.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		logRequest(r.Context(), requestLog{
			method:    r.Method,
			path:      r.URL.Path,
			query:     r.URL.RawQuery,
			userAgent: r.UserAgent(),
			remote:    r.RemoteAddr,
			status:    rec.Status(),
			duration:  time.Since(start),
		})
	})
}

type requestLog struct {
	method    string
	path      string
	query     string
	userAgent string
	remote    string
	status    int
	duration  time.Duration
}

func logRequest(ctx context.Context, r requestLog) {
	logger := logging.GetLogger("http")

	attrs := []slog.Attr{
		slog.String("method", r.method),
		slog.String("path", r.path),
		slog.String("remote_addr", r.remote),
	}
	if r.query != "" {
		attrs = append(attrs, slog.String("query", r.query))
	}
	if r.userAgent != "" {
		attrs = append(attrs, slog.String("user_agent", r.userAgent))
	}
	attrs = append(attrs,
		slog.Int("status", r.status),
		slog.Duration("duration", r.duration),
	)

	// Polled endpoints would drown the log at info.
	level := slog.LevelInfo
	switch {
	case r.status >= 500:
		level = slog.LevelError
	case r.status >= 400:
		level = slog.LevelWarn
	case r.method == http.MethodOptions, isPolledPath(r.path):
		level = slog.LevelDebug
	}
	logger.LogAttrs(ctx, level, "HTTP request completed", attrs...)
}

func isPolledPath(path string) bool {
	switch path {
	case "/stream/hls/index.m3u8", "/api/status", "/api/health", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/stream/hls/")
}

// statusRecorder keeps the status code and still exposes Flush so streaming
// handlers behind it work.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
