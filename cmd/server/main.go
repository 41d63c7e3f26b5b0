package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/studysparkai/backend/internal/auth"
	"github.com/studysparkai/backend/internal/config"
	"github.com/studysparkai/backend/internal/genai"
	"github.com/studysparkai/backend/internal/logger"
	"github.com/studysparkai/backend/internal/middleware"
	"github.com/studysparkai/backend/internal/store"
	"github.com/studysparkai/backend/internal/studyaid"
	"github.com/studysparkai/backend/internal/workflow"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer lg.Sync()

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Fatal("postgres connect", "err", err)
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		lg.Fatal("postgres migrate", "err", err)
	}

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		lg.Fatal("mongo connect", "err", err)
	}
	defer mongoClient.Disconnect(ctx)
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB), cfg.AppID)

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		lg.Fatal("redis connect", "err", err)
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb)

	// ── MinIO ────────────────────────────────────────────────
	minioStore, err := store.NewMinioStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		lg.Fatal("minio connect", "err", err)
	}

	// ── Generation client and workflow ───────────────────────
	aiClient := genai.NewClient(lg, cfg.GenAIBaseURL, cfg.GenAIAPIKey, cfg.TextModel, cfg.ImageModel, cfg.MaxAICalls)
	svc := studyaid.NewService(aiClient, mongoStore, lg, cfg.AppID)
	registry := workflow.NewRegistry()
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if n := registry.PruneIdle(2 * time.Hour); n > 0 {
				lg.Debug("pruned idle workflow sessions", "count", n)
			}
		}
	}()

	// ── Handlers ─────────────────────────────────────────────
	authHandler := auth.NewHandler(pgStore, sessions)
	studyHandler := studyaid.NewHandler(svc, registry, mongoStore, mongoStore, minioStore, lg)

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/anonymous", authHandler.Anonymous)
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.RequireAuth(sessions)).Get("/me", authHandler.Me)
	})

	// Profile and history (protected)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions))
		r.Get("/api/profile", studyHandler.GetProfile)
		r.Put("/api/profile", studyHandler.SaveProfile)
		r.Get("/api/history", studyHandler.History)
	})

	// Study workflow (protected, rate limited)
	r.Route("/api/study", func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions))
		r.Get("/state", studyHandler.State)
		r.Get("/mindmaps/{id}", studyHandler.MindMapImage)
		r.Get("/quiz/score", studyHandler.QuizScore)
		r.Post("/quiz/answers", studyHandler.QuizAnswer)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RatePerMinute, cfg.RateBurst))
			r.Post("/extract", studyHandler.Extract)
			r.Post("/aids", studyHandler.GenerateAid)
			r.Post("/explain", studyHandler.Explain)
			r.Post("/examples", studyHandler.Examples)
		})
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		lg.Info("backend listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("server error", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}
