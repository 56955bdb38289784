package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/clearmarket/clearmarket-api/internal/config"
	"github.com/clearmarket/clearmarket-api/internal/domain/admin"
	"github.com/clearmarket/clearmarket-api/internal/domain/credit"
	"github.com/clearmarket/clearmarket-api/internal/domain/search"
	"github.com/clearmarket/clearmarket-api/internal/domain/searchcredit"
	"github.com/clearmarket/clearmarket-api/internal/middleware"
	"github.com/clearmarket/clearmarket-api/internal/pkg/database"
	"github.com/clearmarket/clearmarket-api/internal/pkg/jwt"
	"github.com/clearmarket/clearmarket-api/internal/pkg/logger"
	"github.com/clearmarket/clearmarket-api/internal/pkg/metrics"
	pkgresponse "github.com/clearmarket/clearmarket-api/internal/pkg/response"
)

const accessTokenTTL = 15 * time.Minute

// app holds the wired services the router serves.
type app struct {
	credits  credit.Service
	search   *search.Service
	jwt      *jwt.Service
	gatherer prometheus.Gatherer
}

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, LogFile: cfg.LogFile})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("store", cfg.Store).
		Msg("Starting ClearMarket API")

	creditRepo, searchRepo, closeStores := openStores(cfg)
	defer closeStores()

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := openSessions(ctx, cfg, redisClient)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	creditService := credit.NewService(creditRepo)
	meter := searchcredit.NewMeter(creditService, creditService, sessions, metrics.NewMetering(reg))

	a := &app{
		credits:  creditService,
		search:   search.NewService(meter, searchRepo, cfg.SearchPageSizeMax),
		jwt:      jwt.NewService(cfg.JWTSecret, accessTokenTTL),
		gatherer: reg,
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

// openStores returns the credit and search backends selected by cfg.Store.
func openStores(cfg *config.Config) (credit.Repository, search.Repository, func()) {
	if cfg.UsesMemoryStore() {
		repo := credit.NewMemoryRepository()
		for id, balance := range cfg.DevAccounts {
			if _, err := uuid.Parse(id); err != nil {
				log.Warn().Str("user_id", id).Msg("Skipping dev account with invalid id")
				continue
			}
			repo.Open(id, balance)
		}
		log.Warn().Int("accounts", len(cfg.DevAccounts)).Msg("Using in-memory credit store, balances are lost on restart")
		return repo, search.NewMemoryRepository(search.DevFieldReps()...), func() {}
	}

	db, err := database.NewPostgres(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		database.ClosePostgres(db)
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	return credit.NewRepository(db), search.NewRepository(db), func() { database.ClosePostgres(db) }
}

// openSessions prefers Redis so entitlements survive restarts and are shared across instances.
func openSessions(ctx context.Context, cfg *config.Config, client *redis.Client) searchcredit.SessionStore {
	if client != nil {
		return searchcredit.NewRedisSessionStore(client, cfg.SearchSessionTTL)
	}

	store := searchcredit.NewMemorySessionStore(cfg.SearchSessionTTL)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := store.Sweep(); n > 0 {
					log.Debug().Int("sessions", n).Msg("Expired search sessions removed")
				}
			}
		}
	}()
	return store
}

func newRouter(cfg *config.Config, a *app) http.Handler {
	authMiddleware := middleware.Auth(a.jwt)

	creditHandler := credit.NewHandler(a.credits)
	searchHandler := search.NewHandler(a.search)
	adminCreditHandler := admin.NewCreditHandler(a.credits)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler(a.gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/credits", creditHandler.Routes(authMiddleware))
		r.Mount("/search", searchHandler.Routes(authMiddleware))
	})

	r.Mount("/api/admin", adminCreditHandler.Routes(authMiddleware))

	return r
}
