package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"photorank-backend/internal/config"
	"photorank-backend/internal/handlers"
	"photorank-backend/internal/jobs"
	"photorank-backend/internal/metrics"
	"photorank-backend/internal/middleware"
	"photorank-backend/internal/ranking"
	"photorank-backend/internal/ratelimit"
	"photorank-backend/internal/repository"
	"photorank-backend/internal/services"
	"photorank-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	configPath := flag.String("config", envOr("PHOTORANK_CONFIG", "config.yaml"), "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if err := repository.CreateSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to create schema")
	}

	objects, err := storage.NewObjectStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create object store")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	photoRepo := repository.NewPhotoRepository(db)
	judgmentRepo := repository.NewJudgmentRepository(db)
	guestRepo := repository.NewGuestRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Rating engine
	policy := ratelimit.Policy{Limit: cfg.Voting.GuestLimit, Window: cfg.Voting.GuestWindow}
	limiter := ratelimit.NewLimiter(policy, guestRepo)
	engine := ranking.NewEngine(judgmentRepo, limiter, ranking.WithObserver(m))

	// Initialize services
	userService := services.NewUserService(userRepo, guestRepo, limiter, cfg.JWT, cfg.Moderator)
	oauthService := services.NewOAuthService(cfg.OAuth)
	categoryService := services.NewCategoryService(categoryRepo)
	photoService := services.NewPhotoService(photoRepo, categoryRepo, uploadRepo, objects, cfg.Uploads)
	analyticsService := services.NewAnalyticsService(analyticsRepo, cfg.Voting.GuestWindow)
	wsHub := services.NewWSHub()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(oauthService, userService, cfg.OAuth.FrontendURL, cfg.Voting.SecureCookies)
	userHandler := handlers.NewUserHandler(userService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	photoHandler := handlers.NewPhotoHandler(photoService, userService)
	ratingHandler := handlers.NewRatingHandler(engine, wsHub, userService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, cfg.Server.AllowedOrigins)

	throttle := middleware.NewThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst)
	guestSession := middleware.GuestSession(
		middleware.NewFingerprinter(cfg.Voting.FingerprintKey),
		cfg.Voting.SecureCookies,
	)
	requireAuth := middleware.RequireAuth(userService)
	requireModerator := middleware.RequireModerator(userService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Throttle.RPS > 0 {
			r.Use(throttle.Middleware)
		}

		r.Get("/auth/login/{provider}", authHandler.Login)
		r.Get("/auth/callback/{provider}", authHandler.Callback)

		r.Get("/categories", categoryHandler.List)
		r.Get("/categories/details", categoryHandler.Details)
		r.Get("/categories/{id}", categoryHandler.Get)
		r.Get("/leaderboard", photoHandler.Leaderboard)
		r.Get("/leaderboard/{category_name}", photoHandler.LeaderboardByName)
		r.Get("/photos/{id}/url", photoHandler.DownloadURL)

		// Voting works for guests and users
		r.Group(func(r chi.Router) {
			r.Use(guestSession)
			r.Use(middleware.OptionalAuth(userService))
			r.Get("/categories/{id}/pair", ratingHandler.GetPair)
			r.Post("/votes", ratingHandler.SubmitVote)
			r.Get("/votes/quota", ratingHandler.GetQuota)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/users/me", userHandler.GetMe)
			r.Get("/users/stats", userHandler.GetStats)
			r.Get("/votes/stats", ratingHandler.GetVoteStats)
			r.Post("/categories", categoryHandler.Create)
			r.Post("/photos/upload", photoHandler.Upload)
			r.Delete("/photos/{id}", photoHandler.Delete)
			r.Delete("/categories/{id}/photos/{photo_id}", photoHandler.DeleteInCategory)

			r.Group(func(r chi.Router) {
				r.Use(requireModerator)
				r.Patch("/photos/{id}/elo", photoHandler.SetRating)
				r.Get("/analytics/overview", analyticsHandler.Overview)
			})
		})
	})

	r.Get("/ws", wsHandler.HandleWebSocket)
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Background jobs
	scheduler := jobs.NewScheduler(guestRepo, cfg.Voting.GuestWindow, m, throttle)
	if err := scheduler.Start(ctx, cfg.Jobs.PurgeSchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job scheduler")
	}
	defer scheduler.Stop()

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("env", cfg.Server.Env).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// corsMiddleware handles CORS. An empty list allows any origin.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(allowed, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
