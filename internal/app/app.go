package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/buymeagift/giftlist/internal/auth"
	"github.com/buymeagift/giftlist/internal/cache"
	"github.com/buymeagift/giftlist/internal/config"
	"github.com/buymeagift/giftlist/internal/event"
	handler "github.com/buymeagift/giftlist/internal/handler/http"
	"github.com/buymeagift/giftlist/internal/job"
	"github.com/buymeagift/giftlist/internal/notify"
	"github.com/buymeagift/giftlist/internal/repository/postgres"
	"github.com/buymeagift/giftlist/internal/service"
	"github.com/buymeagift/giftlist/migrations"
	"github.com/buymeagift/giftlist/pkg/database"
	"github.com/buymeagift/giftlist/pkg/health"
	pkgkafka "github.com/buymeagift/giftlist/pkg/kafka"
	"github.com/buymeagift/giftlist/pkg/middleware"
	"github.com/buymeagift/giftlist/pkg/tracing"
)

const (
	serviceName = "giftlist"

	// rateLimitVisitorTTL is how long an idle client IP keeps its token bucket.
	rateLimitVisitorTTL = 10 * time.Minute
)

// App wires together all dependencies and runs the giftlist service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	rateLimiter    *middleware.RateLimiter
	sweep          *job.NormalizeSweep
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Everything opened below is released again if construction fails.
	var cleanup teardown
	defer func() {
		if err != nil {
			cleanup.run()
		}
	}()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	cleanup.add(func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer flushCancel()
		_ = tracerShutdown(flushCtx)
	})

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	cleanup.add(pool.Close)
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err = database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThreshold)*time.Millisecond, logger)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err = database.RegisterPoolMetrics(reg, pool, serviceName); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	// The wishlist cache is optional: without Redis every read goes to Postgres.
	var redisClient *redis.Client
	if cfg.WishlistCacheTTL > 0 {
		client, redisErr := database.NewRedisClient(ctx, cfg.Redis())
		if redisErr != nil {
			logger.Warn("redis unavailable, wishlist cache disabled",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", redisErr.Error()),
			)
		} else {
			logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
			redisClient = client
			cleanup.add(func() { _ = client.Close() })
		}
	}
	wishlistCache := cache.NewWishlistCache(redisClient, cfg.WishlistCacheTTL)

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	cleanup.add(func() { _ = producer.Close() })
	events := event.NewProducer(producer, logger)

	var mailer notify.Sender
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
	} else {
		logger.Warn("SMTP_HOST not set, password reset mails are logged only")
		mailer = notify.NewLogSender(logger)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry, cfg.PasswordResetExpiry)

	userRepo := postgres.NewUserRepository(pool)
	refreshTokenRepo := postgres.NewRefreshTokenRepository(pool)
	categoryRepo := postgres.NewCategoryRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	wishlistRepo := postgres.NewWishlistRepository(pool)

	userService := service.NewUserService(userRepo, refreshTokenRepo, jwtManager, events, mailer, cfg.PublicBaseURL, logger)
	catalogService := service.NewCatalogService(categoryRepo, productRepo, wishlistRepo, wishlistCache, events, logger)
	wishlistService := service.NewWishlistService(wishlistRepo, productRepo, wishlistCache, events, service.NewWishlistMetrics(reg), logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	sweep, err := job.NewNormalizeSweep(wishlistService, cfg.NormalizeSchedule, loc, cfg.NormalizeTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("schedule normalization: %w", err)
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", wishlistCache.Ping)
	}
	healthHandler.RegisterNonCritical("kafka", producer.Ping)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimitVisitorTTL, logger)

	router := handler.NewRouter(handler.RouterConfig{
		Auth:        userService,
		Catalog:     catalogService,
		Wishlist:    wishlistService,
		Health:      healthHandler,
		Gatherer:    reg,
		HTTPMetrics: middleware.NewHTTPMetrics(reg, serviceName),
		RateLimiter: rateLimiter,
		CORS:        middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins),
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		rateLimiter:    rateLimiter,
		sweep:          sweep,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the normalization sweep, then blocks until
// the context is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go a.rateLimiter.Run(bgCtx)
	a.sweep.Start()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown stops components in dependency order: HTTP first so in-flight
// requests finish, then the sweep, the tracer, and finally the clients.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.sweep.Stop(ctx); err != nil {
		a.logger.Error("normalization sweep stop error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// teardown releases partially constructed dependencies in reverse order.
type teardown struct {
	fns []func()
}

func (t *teardown) add(fn func()) {
	t.fns = append(t.fns, fn)
}

func (t *teardown) run() {
	for i := len(t.fns) - 1; i >= 0; i-- {
		t.fns[i]()
	}
	t.fns = nil
}
