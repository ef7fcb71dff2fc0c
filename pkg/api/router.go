package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/accesstoken"
	"github.com/genbu-cloud/genbu/pkg/api/auth"
	"github.com/genbu-cloud/genbu/pkg/api/handlers"
	apimiddleware "github.com/genbu-cloud/genbu/pkg/api/middleware"
	"github.com/genbu-cloud/genbu/pkg/filesystem"
	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/store"
	"github.com/genbu-cloud/genbu/pkg/upload"
	"github.com/genbu-cloud/genbu/pkg/wopi"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Store      store.Store
	DB         *gorm.DB
	Backend    objstore.Storage
	JWTService *auth.JWTService
	Uploads    *upload.Service
	WOPI       *wopi.Engine
	Tokens     *accesstoken.Service
	Filesystem *filesystem.Service
	Debug      bool
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET  /health, /health/ready - probes
//   - GET  /metrics - Prometheus
//   - POST /api/register, /api/login - account endpoints (unauthenticated)
//   - POST /api/logout, GET /api/users/me - session endpoints
//   - POST /api/files/upload, /api/files/upload/finish - chunked uploads
//   - GET  /api/files/upload/{lease_id} - part URL re-issue
//   - POST /api/files/upload/avatar - avatar presign
//   - GET  /api/files/download - presigned redirect
//   - GET/DELETE /api/filesystem - directory view
//   - /api/wopi/files/{id}[/contents] - WOPI protocol (access_token auth)
//   - POST /api/debug/reset - bucket reset (debug mode only)
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Unauthenticated surface
	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	authHandler := handlers.NewAuthHandler(deps.Store, deps.JWTService)
	filesHandler := handlers.NewFilesHandler(deps.Uploads, deps.Store, deps.Store, deps.Backend)
	fsHandler := handlers.NewFilesystemHandler(deps.Filesystem)
	wopiHandler := handlers.NewWOPIHandler(deps.WOPI)

	r.Route("/api", func(r chi.Router) {
		// Account endpoints
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		// Session-authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.SessionAuth(deps.JWTService))

			r.Post("/logout", authHandler.Logout)
			r.Get("/users/me", authHandler.Me)

			r.Route("/files", func(r chi.Router) {
				r.Post("/upload", filesHandler.Upload)
				r.Post("/upload/finish", filesHandler.Finish)
				r.Post("/upload/avatar", filesHandler.Avatar)
				r.Get("/upload/{lease_id}", filesHandler.Resume)
				r.Get("/download", filesHandler.Download)
			})

			r.Get("/filesystem", fsHandler.List)
			r.Delete("/filesystem", fsHandler.Delete)

			if deps.Debug {
				debugHandler := handlers.NewDebugHandler(deps.Backend)
				r.Post("/debug/reset", debugHandler.Reset)
			}
		})

		// WOPI endpoints - access_token query authentication
		r.Route("/wopi/files/{id}", func(r chi.Router) {
			r.Use(apimiddleware.WOPIAuth(deps.Tokens))

			r.Get("/", wopiHandler.CheckFileInfo)
			r.Post("/", wopiHandler.Files)
			r.Put("/", wopiHandler.Files)
			r.Get("/contents", wopiHandler.GetContents)
			r.Post("/contents", wopiHandler.PutContents)
			r.Put("/contents", wopiHandler.PutContents)
		})
	})

	return r
}

// requestLogger logs requests using the internal logger. Healthcheck
// requests are logged at DEBUG to reduce noise.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/") || path == "/metrics"
}
