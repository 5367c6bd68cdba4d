package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/buymeagift/giftlist/pkg/health"
	"github.com/buymeagift/giftlist/pkg/middleware"
)

// publicWishlistMaxAge is the Cache-Control max-age of the public wishlist view, in seconds.
const publicWishlistMaxAge = 30

// RouterConfig carries the dependencies of the HTTP router.
type RouterConfig struct {
	Auth     AuthService
	Catalog  CatalogService
	Wishlist WishlistService

	Health      *health.Handler
	Gatherer    prometheus.Gatherer
	HTTPMetrics *middleware.HTTPMetrics
	RateLimiter *middleware.RateLimiter
	CORS        middleware.CORSConfig
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all giftlist routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.CorrelationID(cfg.Logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogging(cfg.Logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORS))

	// Operations
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	requireAuth := middleware.Auth(tokenValidator(cfg.Auth))
	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Middleware
	}

	authHandler := NewAuthHandler(cfg.Auth, cfg.Logger)
	categoryHandler := NewCategoryHandler(cfg.Catalog, cfg.Logger)
	productHandler := NewProductHandler(cfg.Catalog, cfg.Logger)
	wishlistHandler := NewWishlistHandler(cfg.Wishlist, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/auth", func(r chi.Router) {
			r.Use(limit)

			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/token/refresh", authHandler.RefreshToken)
			r.Post("/token/verify", authHandler.VerifyToken)
			r.Post("/password-reset", authHandler.RequestPasswordReset)
			r.Get("/password-reset/{uidb64}/{token}", authHandler.CheckPasswordReset)
			r.Patch("/password-reset/complete", authHandler.CompletePasswordReset)
		})

		r.With(requireAuth).Get("/users/me", authHandler.Me)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", categoryHandler.List)
			r.Get("/{id}", categoryHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", categoryHandler.Create)
				r.Put("/{id}", categoryHandler.Update)
				r.Delete("/{id}", categoryHandler.Delete)
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Get("/{id}", productHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", productHandler.Create)
				r.Put("/{id}", productHandler.Update)
				r.Delete("/{id}", productHandler.Delete)
			})
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.With(limit, middleware.CacheControl(publicWishlistMaxAge)).Get("/{user_id}", wishlistHandler.ListPublic)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", wishlistHandler.Get)
				r.Post("/add", wishlistHandler.Add)
				r.Post("/normalize", wishlistHandler.Normalize)
			})
		})
	})

	return r
}
