package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/config"
	"github.com/inkwell-ai/inkwell-engine/pkg/database"
	"github.com/inkwell-ai/inkwell-engine/pkg/handlers"
	"github.com/inkwell-ai/inkwell-engine/pkg/llm"
	"github.com/inkwell-ai/inkwell-engine/pkg/logging"
	"github.com/inkwell-ai/inkwell-engine/pkg/repositories"
	"github.com/inkwell-ai/inkwell-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("registry_cache", cfg.Redis.IsConfigured()),
		zap.String("ai_provider", cfg.AI.Provider))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	llmClient, err := llm.NewClientFromConfig(&cfg.AI, logger)
	if err != nil {
		logger.Fatal("failed to create AI client", zap.Error(err))
	}

	entityRepo := repositories.NewEntityRepository()
	edgeRepo := repositories.NewEdgeRepository()
	entryRepo := repositories.NewEntryRepository()

	var keyIndex services.KeyIndex
	if redisClient != nil {
		keyIndex = services.NewRedisKeyIndex(redisClient)
	}

	getOwnerCtx := services.NewOwnerContextFunc(db)
	txRunner := database.NewTxRunner()
	workerPool := llm.NewWorkerPool(cfg.Extraction.MaxConcurrent, logger)

	associations := services.NewAssociationService(edgeRepo, logger)
	registry := services.NewEntityRegistry(keyIndex, entityRepo, logger)
	extraction := services.NewExtractionService(
		entryRepo, entityRepo, edgeRepo,
		associations, registry,
		llmClient, txRunner, workerPool, getOwnerCtx,
		cfg.Extraction, logger)
	graphQuery := services.NewGraphQueryService(
		entityRepo, entryRepo, edgeRepo,
		associations, getOwnerCtx, logger)
	entities := services.NewEntityService(
		entityRepo, associations, registry,
		txRunner, getOwnerCtx, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewEntityHandler(entities, graphQuery, logger).RegisterRoutes(mux)
	handlers.NewGraphHandler(extraction, graphQuery, associations, registry, getOwnerCtx, logger).RegisterRoutes(mux)

	addr := net.JoinHostPort(cfg.BindAddr, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting inkwell-engine", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
