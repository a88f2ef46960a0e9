package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/youjaegwon/coinwatch/internal/http/handler"
	"github.com/youjaegwon/coinwatch/internal/http/middleware"
	"github.com/youjaegwon/coinwatch/internal/http/response"
	"github.com/youjaegwon/coinwatch/internal/security"
	"github.com/youjaegwon/coinwatch/internal/version"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	UserHandler      *handler.UserHandler
	MarketHandler    *handler.MarketHandler
	JWTManager       *security.JWTManager
	AuthRateLimitRPM int
	APIRateLimitRPM  int
	// Readiness probes; nil checks are reported as skipped.
	DBPinger    func(ctx context.Context) error
	RedisPinger func(ctx context.Context) error

	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())

	authLimiter := middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	requireAuth := middleware.AuthMiddleware(dep.JWTManager)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		ready := true
		runCheck := func(name string, ping func(ctx context.Context) error) {
			if ping == nil {
				checks[name] = "skipped"
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				checks[name] = "down"
				ready = false
				return
			}
			checks[name] = "up"
		}
		runCheck("database", dep.DBPinger)
		runCheck("redis", dep.RedisPinger)
		if !ready {
			response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", checks)
			return
		}
		response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, version.Get())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.With(requireAuth).Post("/logout-all", dep.AuthHandler.LogoutAll)
			r.With(authLimiter).Post("/password/forgot", dep.AuthHandler.PasswordForgot)
			r.With(authLimiter).Post("/password/reset", dep.AuthHandler.PasswordReset)
		})

		r.With(requireAuth).Get("/me", dep.UserHandler.Me)
		r.With(requireAuth).Get("/me/sessions", dep.UserHandler.Sessions)

		if dep.MarketHandler != nil {
			r.Get("/markets", dep.MarketHandler.Coins)
			r.Get("/markets/{symbol}", dep.MarketHandler.Quote)
		}
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
