package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"moviewatch/internal/config"
	"moviewatch/internal/db"
	"moviewatch/internal/http/router"
	"moviewatch/internal/security"
	"moviewatch/internal/service"
	"moviewatch/internal/web"
)

func main() {
	// Load configuration
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Failed to load .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/app.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v, using defaults", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ttl, _ := cfg.SessionTTLDuration()
	connectTimeout, _ := cfg.ConnectTimeout()

	// Initialize database. The manager connects lazily; a failed first attempt
	// is retried on the next request.
	manager := db.NewManager(cfg.DBDriver, cfg.DBDSN, connectTimeout)
	defer manager.Close()

	startCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	if _, err := manager.EnsureConnected(startCtx); err != nil {
		logger.Warn("database not reachable at startup", slog.String("driver", cfg.DBDriver), slog.Any("error", err))
	} else {
		logger.Info("connected to database", slog.String("driver", cfg.DBDriver))
	}
	cancel()

	// Initialize session store
	backend, closeBackend, err := sessionBackend(cfg, manager, logger)
	if err != nil {
		log.Fatalf("Failed to initialize session backend: %v", err)
	}
	defer closeBackend()

	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		logger.Warn("SESSION_SECRET not set, using a random key; sessions will not survive a restart")
		secret = security.NewSecret()
	}
	sessions := security.NewSessions(backend, secret, security.Options{TTL: ttl, Secure: cfg.CookieSecure})

	auth := service.NewAuth(db.NewUserStore(manager), security.NewHasher(cfg.BcryptCost), sessions, logger)
	catalog := service.NewCatalog(db.NewMovieStore(manager), logger)

	views, err := web.NewRenderer()
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	// Setup router
	r := router.Setup(router.Deps{
		Auth:    auth,
		Catalog: catalog,
		Cookies: sessions,
		Views:   views,
		Store:   manager,
		Log:     logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  time.Minute,
	}

	// Start server
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down server", slog.String("signal", sig.String()))

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func sessionBackend(cfg *config.Config, manager *db.Manager, logger *slog.Logger) (security.Backend, func(), error) {
	switch strings.ToLower(cfg.SessionBackend) {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := security.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sessions stored in redis", slog.String("addr", cfg.Redis.Addr))
		return security.NewRedisBackend(client, "moviewatch:session"), func() { client.Close() }, nil
	case "memory":
		logger.Warn("sessions stored in memory; they are lost on restart")
		return security.NewMemoryBackend(), func() {}, nil
	default:
		store := db.NewSessionStore(manager)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if n, err := store.PurgeExpired(ctx); err != nil {
			logger.Warn("purge expired sessions", slog.Any("error", err))
		} else if n > 0 {
			logger.Info("purged expired sessions", slog.Int64("count", n))
		}
		return store, func() {}, nil
	}
}
