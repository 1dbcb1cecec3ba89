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
	"github.com/sirupsen/logrus"

	"github.com/yoockh/helpdesk/config"
	"github.com/yoockh/helpdesk/internal/api/handlers"
	"github.com/yoockh/helpdesk/internal/api/middleware"
	"github.com/yoockh/helpdesk/internal/api/routes"
	"github.com/yoockh/helpdesk/internal/auth"
	"github.com/yoockh/helpdesk/internal/cache"
	"github.com/yoockh/helpdesk/internal/logger"
	"github.com/yoockh/helpdesk/internal/metrics"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/providers/embed"
	"github.com/yoockh/helpdesk/internal/providers/llm"
	mongorepo "github.com/yoockh/helpdesk/internal/repositories/mongo"
	pgrepo "github.com/yoockh/helpdesk/internal/repositories/postgres"
	"github.com/yoockh/helpdesk/internal/services"
	"github.com/yoockh/helpdesk/internal/storage"
	"github.com/yoockh/helpdesk/internal/workers"
)

func main() {
	cfg := config.Load()
	log := logger.New()

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	db, err := config.InitPostgres()
	if err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	if err := config.MigratePostgres(db); err != nil {
		log.WithError(err).Fatal("PostgreSQL migration error")
	}
	log.Info("PostgreSQL connected")

	// MongoDB
	mc, err := config.InitMongo()
	if err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	defer mc.Disconnect(context.Background())
	mdb := mc.Database(cfg.MongoDB)
	if err := config.EnsureMongoIndexes(mdb); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	// Redis is optional: without it stats and revocations stay in process and
	// escalations are applied inline.
	var (
		statsCache cache.Cache
		revoked    cache.Revocations
	)
	rdb, err := config.InitRedis()
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, using in-memory cache")
		mem := cache.NewMemoryCache()
		statsCache, revoked = mem, mem
		rdb = nil
	} else {
		defer rdb.Close()
		rc := cache.NewRedisCache(rdb)
		statsCache, revoked = rc, rc
		log.Info("Redis connected")
	}

	// Object storage
	var objects storage.ObjectStore
	if cfg.GCSBucket != "" {
		gcs, err := storage.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer gcs.Close()
		objects = gcs
	} else {
		log.Warn("GCS_BUCKET not set, knowledge base files kept in memory")
		objects = storage.NewMemoryStore()
	}

	// LLM
	var provider llm.Provider
	if cfg.VertexProject != "" && cfg.VertexModel != "" {
		vg, err := llm.NewVertexGemini(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.VertexModel)
		if err != nil {
			log.WithError(err).Fatal("Vertex AI init error")
		}
		provider = vg
	} else {
		log.Warn("Vertex AI not configured, using canned replies")
		provider = &llm.Canned{}
	}
	defer provider.Close()

	// Repositories
	users := pgrepo.NewUserRepo(db)
	convos := pgrepo.NewConversationRepo(db)
	feedback := pgrepo.NewFeedbackRepo(db)
	chunks := pgrepo.NewChunkRepo(db)
	nodes := mongorepo.NewKBRepo(mdb)

	// Services
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	authSvc := services.NewAuthService(users, issuer, revoked, logger.Component(log, "auth"))
	userSvc := services.NewUserService(users)
	kbSvc := services.NewKBService(services.KBDeps{
		Nodes:    nodes,
		Chunks:   chunks,
		Objects:  objects,
		Embedder: embed.NewHashing(models.EmbeddingDim),
		Logger:   logger.Component(log, "kb"),
		Async:    true,
	})

	var escalator services.Escalator
	direct := &workers.DirectEscalator{Logger: logger.Component(log, "escalation")}
	if rdb != nil {
		escalator = &workers.StreamEscalator{Redis: rdb, Stream: cfg.EscalationStream}
	} else {
		escalator = direct
	}
	chatSvc := services.NewChatService(services.ChatDeps{
		Conversations: convos,
		Users:         users,
		Feedback:      feedback,
		Retriever:     kbSvc,
		LLM:           provider,
		Escalator:     escalator,
		Logger:        logger.Component(log, "chat"),
	})
	direct.Chat = chatSvc
	adminSvc := services.NewAdminService(convos, users, kbSvc, statsCache, cfg.StatsTTL, logger.Component(log, "admin"))

	if err := authSvc.SeedAdmin(ctx, "Administrator", cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		log.WithError(err).Fatal("seed admin error")
	}

	// Workers
	if rdb != nil {
		pool := &workers.EscalationWorkerPool{
			Redis:      rdb,
			Chat:       chatSvc,
			NumWorkers: cfg.NumWorkers,
			Logger:     log,
			Stream:     cfg.EscalationStream,
			Group:      cfg.EscalationGroup,
		}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("escalation worker error")
		}
	}

	// HTTP
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log), metrics.Middleware())
	routes.RegisterRoutes(r, routes.Deps{
		Issuer:  issuer,
		Revoked: revoked,
		Auth:    handlers.NewAuthHandler(authSvc),
		Chat:    handlers.NewChatHandler(chatSvc),
		Admin:   handlers.NewAdminHandler(adminSvc, userSvc),
		KB:      handlers.NewKBHandler(kbSvc),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("support API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
	log.WithFields(logrus.Fields{"port": cfg.Port}).Info("support API stopped")
}
