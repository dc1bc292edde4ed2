package routes

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/templui/pixelplan/internal/app"
	"github.com/templui/pixelplan/internal/handler"
	"github.com/templui/pixelplan/internal/middleware"
)

// SetupRoutes builds the HTTP API. Background work started here (rate limiter
// eviction) stops when ctx is done.
func SetupRoutes(ctx context.Context, app *app.App) http.Handler {
	cfg := app.Cfg

	// Handlers
	health := handler.NewHealthHandler(app.DB)
	auth := handler.NewAuthHandler(app.AuthService, app.EntitlementService, app.PlanService)
	image := handler.NewImageHandler(app.ImageService, cfg.AppURL, cfg.MaxUploadSize)
	thumbnail := handler.NewThumbnailHandler(app.ThumbnailService, cfg.AppURL)
	link := handler.NewLinkHandler(app.LinkService, cfg.AppURL)

	throttler := middleware.NewThrottler(cfg.UploadConcurrency, cfg.UploadQueueTimeout)
	linkLimiter := middleware.RateLimit(middleware.NewIPRateLimiter(ctx, cfg.LinkRateLimit, cfg.LinkRateBurst))
	authLimiter := middleware.RateLimit(middleware.NewIPRateLimiter(ctx, 1, 10))

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Auth (rate limited)
	mux.HandleFunc("POST /api/auth/register", authLimiter(auth.Register))
	mux.HandleFunc("POST /api/auth/login", authLimiter(auth.Login))

	// Temporary links are anonymous; the id is the credential
	mux.HandleFunc("GET /l/{id}", linkLimiter(link.Content))

	// ============================================================================
	// PROTECTED ROUTES (/api/*)
	// ============================================================================

	mux.HandleFunc("GET /api/me", middleware.RequireAuth(auth.Me))
	mux.HandleFunc("GET /api/plans", middleware.RequireAuth(auth.Plans))

	// Images
	mux.HandleFunc("POST /api/images", middleware.RequireAuth(throttler.Throttle(image.Upload)))
	mux.HandleFunc("GET /api/images", middleware.RequireAuth(image.List))
	mux.HandleFunc("GET /api/images/{id}", middleware.RequireAuth(image.Get))
	mux.HandleFunc("DELETE /api/images/{id}", middleware.RequireAuth(image.Delete))
	mux.HandleFunc("GET /api/images/{id}/original", middleware.RequireAuth(image.Original))
	mux.HandleFunc("POST /api/images/{id}/thumbnails", middleware.RequireAuth(throttler.Throttle(image.EnsureThumbnails)))

	// Thumbnails
	mux.HandleFunc("GET /api/thumbnails", middleware.RequireAuth(thumbnail.List))
	mux.HandleFunc("GET /api/thumbnails/{id}/content", middleware.RequireAuth(thumbnail.Content))

	// Expirable links
	mux.HandleFunc("POST /api/links", middleware.RequireAuth(link.Create))
	mux.HandleFunc("GET /api/links", middleware.RequireAuth(link.List))

	// Global middleware - executed in order (top to bottom)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: !allowsAnyOrigin(cfg.CORSAllowedOrigins),
	})

	return middleware.Chain(
		mux,
		middleware.RequestID, // First so every log line carries the id
		corsHandler.Handler,
		middleware.Authenticate(app.AuthService),
		middleware.RequestLogging,
	)
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
