package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelar/songforge/internal/config"
	"github.com/avelar/songforge/internal/logger"
	"github.com/avelar/songforge/internal/repository"
	"github.com/avelar/songforge/internal/service"
	"github.com/avelar/songforge/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	once := flag.Bool("once", false, "run a single archive pass and exit")
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

	objectStorage, err := storage.NewS3Storage(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create object storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		cancel()
		log.WithError(err).Fatal("Failed to ensure bucket")
	}
	cancel()

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

	archiveService := service.NewArchiveService(jobRepo, objectStorage, discoveryService, log, &service.ArchiveConfig{
		Workers:   cfg.Archive.Workers,
		BatchSize: cfg.Archive.BatchSize,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		stats, err := archiveService.RunOnce(runCtx)
		if err != nil {
			log.WithError(err).Fatal("Archive pass failed")
		}
		log.WithFields(logger.Fields{
			"total":    stats.TotalJobs,
			"archived": stats.ArchivedJobs,
			"failed":   stats.FailedJobs,
		}).Info("Archive pass finished")
		return
	}

	log.WithField("interval", cfg.Archive.Interval.String()).Info("Starting archiver")
	if err := archiveService.Run(runCtx, cfg.Archive.Interval); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("Archiver stopped")
	}
	log.Info("Archiver stopped")
}
