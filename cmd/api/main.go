//	@title			Picshelf API
//	@version		1.0
//	@description	Image hosting backend: accounts, cookie sessions and per-account media stored in Imgur or S3-compatible storage.
//
//	@host		localhost:8080
//	@BasePath	/api
//
//	@securityDefinitions.apikey	CookieAuth
//	@in							cookie
//	@name						jwtToken
//	@description				Session token set by /users/login in the jwtToken cookie.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/picshelf/service/internal/account"
	"github.com/picshelf/service/internal/auth"
	"github.com/picshelf/service/internal/config"
	"github.com/picshelf/service/internal/db"
	"github.com/picshelf/service/internal/events"
	"github.com/picshelf/service/internal/logging"
	appMiddleware "github.com/picshelf/service/internal/middleware"
	"github.com/picshelf/service/internal/profile"
	"github.com/picshelf/service/internal/storage"
	"github.com/picshelf/service/internal/token"

	_ "github.com/picshelf/service/docs/swagger"
)

// bypassPaths are served without a session token.
var bypassPaths = []string{
	"/api/users/register",
	"/api/users/login",
	"/health",
	"/swagger/",
}

func main() {
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.AppEnv, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	repo, closeRepo, err := newAccountRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	store, err := newMediaStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("media store init failed: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		log.Info("connected to redis")
	}

	var (
		cache     profile.Cache
		publisher events.Publisher
	)
	if rdb != nil {
		cache = profile.NewRedisCache(rdb, "profile", cfg.ProfileCacheTTL)
		publisher = events.NewRedisPublisher(rdb)
	} else {
		cache = profile.NewMemoryCache()
		publisher = events.NewLogPublisher(log)
	}

	dispatcher := events.NewDispatcher(publisher, cfg.EventChannel, cfg.EventBuffer, log)
	defer dispatcher.Close()

	tokens, err := token.NewService(cfg.JWTSecret)
	if err != nil {
		return err
	}

	// Wire dependencies: repository → service → handler
	accountSvc := account.NewService(repo, store, dispatcher, cache, log)
	accountHandler := account.NewHandler(accountSvc)

	authSvc, err := auth.NewService(repo, tokens, 0, log)
	if err != nil {
		return err
	}
	authHandler := auth.NewHandler(authSvc, cfg.IsProduction())

	gate := appMiddleware.NewGate(tokens, bypassPaths, log)

	// Router
	r := chi.NewRouter()
	for _, mw := range []func(http.Handler) http.Handler{
		chiMiddleware.RequestID,
		chiMiddleware.RealIP,
		appMiddleware.Logger(log),
		chiMiddleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		gate.Handler,
	} {
		r.Use(mw)
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI, available at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			accountHandler.Routes(r)
		})
		accountHandler.MediaRoutes(r)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Port, "env", cfg.AppEnv, "media_backend", cfg.MediaBackend)
		log.Info("swagger UI available", "url", "http://localhost:"+cfg.Port+"/swagger/")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	published, failed, dropped := dispatcher.Stats()
	log.Info("server stopped", "events_published", published, "events_failed", failed, "events_dropped", dropped)
	return nil
}

func newAccountRepository(ctx context.Context, cfg *config.Config, log *slog.Logger) (account.Repository, func(), error) {
	switch cfg.AccountStore {
	case config.AccountStoreMemory:
		log.Warn("using in-memory account store; data is lost on restart")
		return account.NewMemoryRepository(), func() {}, nil
	case config.AccountStorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("database migration failed: %w", err)
		}
		return account.NewPostgresRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown ACCOUNT_STORE %q", cfg.AccountStore)
	}
}

func newMediaStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.MediaStore, error) {
	switch cfg.MediaBackend {
	case config.MediaBackendImgur:
		return storage.NewImgurStorage(cfg.ImgurClientID, cfg.ImgurAPIBase, cfg.ImgurImageBase, log)
	case config.MediaBackendMinio:
		return storage.NewMinioStorage(ctx,
			cfg.StorageEndpoint,
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			cfg.StorageBucket,
			cfg.StoragePublicBase,
			cfg.StorageUseSSL,
			log,
		)
	case config.MediaBackendMemory:
		log.Warn("using in-memory media store; objects are lost on restart")
		return storage.NewMemoryStorage(cfg.StoragePublicBase), nil
	default:
		return nil, fmt.Errorf("unknown MEDIA_BACKEND %q", cfg.MediaBackend)
	}
}
