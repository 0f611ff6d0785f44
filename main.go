package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"momentumAPI/cache"
	"momentumAPI/db"
	"momentumAPI/handlers"
	"momentumAPI/internal/config"
	"momentumAPI/internal/identity"
	"momentumAPI/internal/notification"
	"momentumAPI/internal/workers"
	"momentumAPI/middleware"
	"momentumAPI/services"
	"momentumAPI/utils"

	_ "net/http/pprof"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogMode, cfg.LogPath)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	clerk.SetKey(cfg.ClerkSecretKey)
	logger.Info("clerk_initialized")

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(startCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database_connect_failed", zap.Error(err))
	}
	defer func() {
		logger.Info("closing_database_pool")
		pool.Close()
	}()
	if err := db.ApplySchema(startCtx, pool); err != nil {
		logger.Fatal("schema_apply_failed", zap.Error(err))
	}
	logger.Info("database_connected")

	var scoreCache *cache.ScoreCache
	if cfg.CacheEnabled() {
		client, err := cache.NewRedisClient(startCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("score_cache_disabled", zap.Error(err))
		} else {
			defer client.Close()
			scoreCache = cache.NewScoreCache(client, cfg.ScoreCacheTTL, logger)
		}
	}

	var pushProvider services.PushProvider
	fcmService, err := notification.NewFCMService(startCtx, cfg.FCMCredentialsFile, logger)
	if err != nil {
		logger.Warn("fcm_disabled", zap.Error(err))
	} else {
		pushProvider = fcmService
		logger.Info("fcm_initialized")
	}

	notificationService := services.NewNotificationService(pool, pushProvider, logger)
	milestoneService := services.NewMilestoneService(pool, notificationService, logger)
	habitService := services.NewHabitService(pool, milestoneService, scoreCache, logger)
	activityService := services.NewActivityService(pool, milestoneService, scoreCache, logger)
	identityService := services.NewIdentityService(pool, scoreCache, identity.DefaultScorer(), logger)
	userService := services.NewUserService(pool, logger)

	if _, err := milestoneService.SeedDefinitions(startCtx); err != nil {
		logger.Fatal("milestone_seed_failed", zap.Error(err))
	}

	middleware.InitPrometheus()
	utils.InitMetrics()

	habitHandler := handlers.NewHabitHandler(habitService)
	activityHandler := handlers.NewActivityHandler(activityService)
	identityHandler := handlers.NewIdentityHandler(identityService)
	milestoneHandler := handlers.NewMilestoneHandler(milestoneService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	webhookHandler := handlers.NewWebhookHandler(userService, cfg.ClerkWebhookSecret, logger)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Cleanup(bgCtx)

	alertWorker := workers.NewStreakAlertWorker(pool, notificationService, cfg.StreakAlertInterval, logger)
	go alertWorker.Run(bgCtx)

	r := mux.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(limiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuth(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofGuard(cfg.PprofSecret)(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := pool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "momentum-api"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuth(middleware.ClerkVerifier, logger))

	protected.HandleFunc("/auth/login-event", activityHandler.RecordLogin).Methods("POST")

	protected.HandleFunc("/habit-items/{id}/toggle", habitHandler.ToggleCompletion).Methods("POST")
	protected.HandleFunc("/habit-stacks/{id}/complete-all", habitHandler.CompleteAll).Methods("POST")
	protected.HandleFunc("/analytics/streaks", habitHandler.GetStreakSummary).Methods("GET")

	protected.HandleFunc("/tasks/{id}/complete", activityHandler.CompleteTask).Methods("POST")
	protected.HandleFunc("/identities/{id}/proofs", activityHandler.AddProof).Methods("POST")
	protected.HandleFunc("/journal", activityHandler.RecordJournalEntry).Methods("POST")

	protected.HandleFunc("/identities/scores", identityHandler.GetScores).Methods("GET")
	protected.HandleFunc("/identities/feedback", identityHandler.GetFeedback).Methods("GET")
	protected.HandleFunc("/identities/recommendation", identityHandler.GetRecommendation).Methods("GET")

	protected.HandleFunc("/milestones", milestoneHandler.GetUserMilestones).Methods("GET")
	protected.HandleFunc("/milestones/unseen", milestoneHandler.GetUnseenMilestones).Methods("GET")
	protected.HandleFunc("/milestones/mark-seen", milestoneHandler.MarkSeen).Methods("POST")
	protected.HandleFunc("/milestones/stats", milestoneHandler.GetStats).Methods("GET")
	protected.HandleFunc("/milestones/definitions", milestoneHandler.GetDefinitions).Methods("GET")
	protected.HandleFunc("/milestones/definitions", milestoneHandler.CreateDefinition).Methods("POST")
	protected.HandleFunc("/milestones/definitions/{id}", milestoneHandler.UpdateDefinition).Methods("PUT")
	protected.HandleFunc("/milestones/definitions/{id}/toggle", milestoneHandler.ToggleDefinition).Methods("PUT")

	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
	)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server_starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server_failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutdown_signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", zap.Error(err))
	}
	stopBackground()
	notificationService.Stop()
	logger.Info("server_shutdown_complete")
}
