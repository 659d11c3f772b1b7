// Package api is the HTTP surface: viewer pages and streams on raw routes and
// a JSON API with OpenAPI docs via huma.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/Rei0925/MFWeb/internal/api/models"
	"github.com/Rei0925/MFWeb/internal/cast"
	"github.com/Rei0925/MFWeb/internal/events"
	"github.com/Rei0925/MFWeb/internal/hls"
	"github.com/Rei0925/MFWeb/internal/logging"
	"github.com/Rei0925/MFWeb/internal/version"
	"github.com/Rei0925/MFWeb/ui"
)

// Caster is the lifecycle the API drives.
type Caster interface {
	Start(ctx context.Context) error
	Stop() error
	Status() cast.Status
}

// Options wires the server to the rest of the application.
type Options struct {
	AuthUsername string
	AuthPassword string

	Caster   Caster
	EventBus *events.Bus

	// Stream endpoints. Nil disables the route.
	MJPEG    http.Handler
	HLSFiles *hls.Files
	Viewers  func() int

	FFmpegBinary      string
	PrometheusHandler http.Handler
}

// Server owns the mux and the huma API registered on it.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger
}

// basicAuthMiddleware checks HTTP basic credentials on operations that
// declare a security requirement.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		user, pass, err := credentials(ctx)
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="MFWeb"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, err.Error())
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !userOK || !passOK {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="MFWeb"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// credentials reads the Authorization header, or the base64 "auth" query
// parameter that EventSource clients fall back to.
func credentials(ctx huma.Context) (string, string, error) {
	var encoded string
	if header := ctx.Header("Authorization"); header != "" {
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return "", "", errors.New("Invalid authentication type")
		}
		encoded = header[len(prefix):]
	} else {
		encoded = ctx.Query("auth")
	}
	if encoded == "" {
		return "", "", errors.New("Authentication required")
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", errors.New("Invalid credentials format")
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", errors.New("Invalid credentials format")
	}
	return user, pass, nil
}

// NewServer creates the server and registers every route.
func NewServer(opts *Options) (*Server, error) {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("MFWeb API", version.String())
	config.Info.Description = "Live market dashboard caster: lifecycle, status, logs and events"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	if err := server.registerStreamRoutes(); err != nil {
		return nil, err
	}
	return server, nil
}

// registerStreamRoutes adds the viewer pages and stream endpoints. These are
// plain handlers: the multipart stream and segments are not JSON operations.
func (s *Server) registerStreamRoutes() error {
	pages, err := ui.Load()
	if err != nil {
		return err
	}
	for pattern, page := range map[string]string{
		"GET /{$}":          ui.PageIndex,
		"GET /stream/mjpeg": ui.PageMJPEG,
		"GET /stream/hls":   ui.PageHLS,
	} {
		h, err := pages.Handler(page)
		if err != nil {
			return err
		}
		s.mux.Handle(pattern, LogRequests(h))
	}

	if s.options.MJPEG != nil {
		s.mux.Handle("GET /mjpeg", LogRequests(s.options.MJPEG))
	}
	if f := s.options.HLSFiles; f != nil {
		s.mux.Handle("GET /stream/hls/index.m3u8", LogRequests(http.HandlerFunc(f.ServeManifest)))
		s.mux.Handle("GET /stream/hls/{segment}", LogRequests(http.HandlerFunc(f.ServeSegment)))
	}
	// Without this, the OPTIONS / preflight route turns unknown GETs into 405.
	s.mux.Handle("GET /", LogRequests(http.HandlerFunc(http.NotFound)))
	return nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until Stop.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting HTTP server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the listener and every open connection, including streams.
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		v := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   v.Version,
				GitCommit: v.GitCommit,
				BuildDate: v.BuildDate,
				BuildID:   v.BuildID,
				GoVersion: v.GoVersion,
				Compiler:  v.Compiler,
				Platform:  v.Platform,
			},
		}, nil
	})

	s.registerCastRoutes()
	s.registerEncoderRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
	s.registerMetricsRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
