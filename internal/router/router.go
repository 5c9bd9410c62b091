package router

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/setting"
	settingrepo "github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/submission"
	submissionrepo "github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/submission/repo"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/tenant"
)

const requestIDHeader = "X-Request-ID"

type ctxKey struct{}

// Config holds router level options.
type Config struct {
	AllowedOrigins []string
}

// ConfigFromEnv reads CORS_ALLOWED_ORIGINS as a comma separated list.
func ConfigFromEnv() Config {
	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Config{AllowedOrigins: origins}
}

// Deps are the collaborators the routes are built from.
type Deps struct {
	DB      *sqlx.DB
	Tokens  *auth.TokenService
	Tenants *tenant.Service
	// Static is served at "/". Nil disables the frontend.
	Static fs.FS
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// RequestID returns the id assigned to the request by RequestIDMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequestIDMiddleware keeps a caller supplied X-Request-ID or assigns a KSUID,
// echoes it on the response and stores it in the request context.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" || len(id) > 64 {
				id = ksuid.New().String()
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		})
	}
}

// LoggingMiddleware logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			// only over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware allows cross-origin API calls from the configured origins.
// With no origins configured it is a no-op and only same-origin calls work.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	})
}

func healthHandler(db *sqlx.DB, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logger.Warnw("health check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// RegisterRoutes mounts every API route and the static frontend on an http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, cfg Config, deps Deps) http.Handler {
	mux := http.NewServeMux()
	guard := auth.NewMiddleware(deps.Tokens, logger)

	mux.HandleFunc("GET /api/health", healthHandler(deps.DB, logger))

	// tenant routes
	tenantHandler := tenant.NewHandler(deps.Tenants, deps.Tokens, guard, logger)
	mux.HandleFunc("POST /api/auth/login", tenantHandler.Login)
	mux.HandleFunc("POST /api/auth/register", tenantHandler.Register)
	mux.Handle("POST /api/admin/create-client", guard.RequireAdmin(http.HandlerFunc(tenantHandler.CreateClient)))
	mux.HandleFunc("POST /api/admin/send-password-link", tenantHandler.SendPasswordLink)
	mux.HandleFunc("POST /api/set-password", tenantHandler.SetPassword)

	// setting routes
	settingHandler := setting.NewHandler(setting.NewService(settingrepo.NewRepo(deps.DB)), logger)
	mux.Handle("GET /api/customer/{name}", guard.Authenticate(http.HandlerFunc(settingHandler.Get)))

	// submission routes
	submissionHandler := submission.NewHandler(submission.NewService(submissionrepo.NewRepo(deps.DB)), logger)
	mux.Handle("POST /api/orders", guard.Authenticate(http.HandlerFunc(submissionHandler.CreateOrder)))
	mux.Handle("POST /api/players", guard.Authenticate(http.HandlerFunc(submissionHandler.CreatePlayer)))

	if deps.Static != nil {
		mux.Handle("GET /", http.FileServerFS(deps.Static))
	}

	handler := CORSMiddleware(cfg.AllowedOrigins)(mux)
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	return RequestIDMiddleware()(handler)
}
