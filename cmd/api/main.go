package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelar/songforge/internal/api"
	"github.com/avelar/songforge/internal/config"
	"github.com/avelar/songforge/internal/logger"
	"github.com/avelar/songforge/internal/provider/suno"
	"github.com/avelar/songforge/internal/repository"
	"github.com/avelar/songforge/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}

	jobRepo := repository.NewJobRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	sunoClient := suno.NewClient(&suno.Config{
		BaseURL:       cfg.Suno.BaseURL,
		APIKey:        cfg.Suno.APIKey,
		CallbackURL:   cfg.Suno.CallbackURL,
		SubmitTimeout: cfg.Suno.SubmitTimeout,
		PollTimeout:   cfg.Suno.PollTimeout,
	})

	quotaService := service.NewQuotaService(jobRepo, profileRepo, cfg.Quota.CreditCost)
	eventHub := service.NewEventHub()
	generationService := service.NewGenerationService(
		jobRepo, profileRepo, sunoClient, quotaService, eventHub, log,
		&service.GenerationConfig{DefaultModel: cfg.Suno.Model},
	)

	var discoveryService *service.DiscoveryService
	if cfg.Discovery.Enabled {
		vectorRepo, err := repository.NewVectorRepository(&repository.VectorConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to vector store")
		}
		defer vectorRepo.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := vectorRepo.EnsureCollection(ctx); err != nil {
			cancel()
			log.WithError(err).Fatal("Failed to ensure vector collection")
		}
		cancel()

		embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Dimensions: cfg.Embedding.Dimensions,
		})
		discoveryService = service.NewDiscoveryService(jobRepo, vectorRepo, embeddingService, log, &service.DiscoveryConfig{
			ScoreThreshold: cfg.Discovery.ScoreThreshold,
			TopK:           cfg.Discovery.TopK,
		})
	}

	router := api.SetupRouter(cfg, &api.RouterDeps{
		DB:          db,
		Profiles:    profileRepo,
		Generations: generationService,
		Quota:       quotaService,
		Discovery:   discoveryService,
		Events:      eventHub,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}

	log.Info("Server stopped")
}
