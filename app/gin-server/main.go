package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Preyoshi04/MockWise/config"
	"github.com/Preyoshi04/MockWise/internal/api/handlers"
	"github.com/Preyoshi04/MockWise/internal/api/middleware"
	"github.com/Preyoshi04/MockWise/internal/api/routes"
	"github.com/Preyoshi04/MockWise/internal/cache"
	"github.com/Preyoshi04/MockWise/internal/logger"
	"github.com/Preyoshi04/MockWise/internal/providers/llm"
	"github.com/Preyoshi04/MockWise/internal/pubsub"
	mongorepo "github.com/Preyoshi04/MockWise/internal/repositories/mongo"
	pgrepo "github.com/Preyoshi04/MockWise/internal/repositories/postgres"
	"github.com/Preyoshi04/MockWise/internal/services"
	"github.com/Preyoshi04/MockWise/internal/storage"
	"github.com/Preyoshi04/MockWise/internal/utils"
	"github.com/Preyoshi04/MockWise/internal/vapi"
	"github.com/Preyoshi04/MockWise/internal/workers"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	log := logger.New()

	settings, err := config.LoadSettings()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	if err := config.MigratePostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL migration error")
	}
	log.Info("PostgreSQL connected")

	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// repositories
	interviewRepo := mongorepo.NewInterviewRepo(config.MongoDatabase())
	userRepo := pgrepo.NewUserRepo(config.PostgresDB)
	eventRepo := pgrepo.NewWebhookEventRepo(config.PostgresDB)

	// services
	tokens := utils.TokenIssuer{
		Secret:   []byte(settings.JWTSecret),
		Issuer:   settings.JWTIssuer,
		Audience: settings.JWTAudience,
		TTL:      settings.JWTTTL,
	}
	interviewSvc := services.NewInterviewService(interviewRepo, userRepo, log)
	authSvc := services.NewAuthService(userRepo, tokens)
	userSvc := services.NewUserService(userRepo)
	statsSvc := services.NewStatsService(interviewRepo, userRepo, cache.NewRedisCache(config.RedisClient, "mockwise:"))
	auditSvc := services.NewWebhookAuditService(eventRepo)

	bus := pubsub.NewRedisBus(config.RedisClient)
	queue := &workers.StreamQueue{Redis: config.RedisClient}

	voice := vapi.NewClient(vapi.Options{
		BaseURL:     settings.Vapi.BaseURL,
		APIKey:      settings.Vapi.APIKey,
		AssistantID: settings.Vapi.AssistantID,
		Bus:         bus,
		Logger:      log.WithField("component", "vapi"),
	})
	if !settings.VoiceEnabled() {
		log.Warn("VAPI_API_KEY/VAPI_ASSISTANT_ID not set: interview sessions cannot dial")
	}

	pool := &workers.ReportWorkerPool{
		Redis:      config.RedisClient,
		Interviews: interviewSvc,
		NumWorkers: settings.ReportWorkers,
		Logger:     log,
	}

	pages := handlers.NewPageHandler(interviewSvc, statsSvc, userSvc)

	if settings.GCSBucket != "" {
		store, err := storage.NewGCSStore(ctx, settings.GCSBucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer store.Close()
		pool.Uploader = store
		pages.WithRecordingSigner(store)
	}
	if settings.GCPProjectID != "" {
		gemini, err := llm.NewVertexGemini(ctx, settings.GCPProjectID, settings.GCPLocation, settings.GeminiModel)
		if err != nil {
			log.WithError(err).Fatal("Vertex AI init error")
		}
		defer gemini.Close()
		pool.LLM = gemini
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Auth:      handlers.NewAuthHandler(authSvc, settings.CookieSecure),
		Pages:     pages,
		Interview: handlers.NewInterviewHandler(interviewSvc, auditSvc),
		Webhook:   handlers.NewWebhookHandler(interviewSvc, auditSvc, bus, queue, settings.Vapi.WebhookSecret, log),
		WS:        handlers.NewWSHandler(voice, interviewSvc, log, settings.AllowedOrigins),
		JWT: middleware.JWTConfig{
			Secret:   []byte(settings.JWTSecret),
			Issuer:   settings.JWTIssuer,
			Audience: settings.JWTAudience,
		},
	})

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", settings.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if settings.ReportWorkers > 0 {
		g.Go(func() error { return pool.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped with error")
	}
	closeClients(log)
}

func closeClients(log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := config.CloseMongo(ctx); err != nil {
		log.WithError(err).Warn("mongo close")
	}
	if err := config.ClosePostgres(); err != nil {
		log.WithError(err).Warn("postgres close")
	}
	if err := config.CloseRedis(); err != nil {
		log.WithError(err).Warn("redis close")
	}
	log.Info("shutdown complete")
}
