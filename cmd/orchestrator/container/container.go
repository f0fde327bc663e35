package container

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lumina/orchestrator/cmd/orchestrator/handlers"
	"github.com/lumina/orchestrator/cmd/orchestrator/repository"
	"github.com/lumina/orchestrator/cmd/orchestrator/service"
	"github.com/lumina/orchestrator/common/bootstrap"
	"github.com/lumina/orchestrator/common/clients"
	"github.com/lumina/orchestrator/common/locks"
	"github.com/lumina/orchestrator/common/ratelimit"
	rediscommon "github.com/lumina/orchestrator/common/redis"
	"github.com/lumina/orchestrator/common/storage"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components  *bootstrap.Components
	Redis       *rediscommon.Client
	Store       storage.ObjectStore
	Keys        *storage.KeyGenerator
	FastDisk    *storage.FastDisk
	Locks       *locks.KeyedLock
	RateLimiter *ratelimit.RateLimiter

	// Repositories
	AssetRepo      *repository.AssetRepository
	NamedQueryRepo *repository.NamedQueryRepository

	// Services
	Tracker      *service.AssetTracker
	Validator    *service.AccessValidator
	Orchestrator *service.Orchestrator
	Routing      *service.RoutingEngine
	Conductor    *service.NamedQueryConductor
	Projections  *service.ProjectionManager
	PDFCreator   *service.PDFCreator
	ZipCreator   *service.ZipCreator

	// Handlers
	Forwarder         *handlers.Forwarder
	ImageHandler      *handlers.ImageHandler
	TimeBasedHandler  *handlers.TimeBasedHandler
	FileHandler       *handlers.FileHandler
	NamedQueryHandler *handlers.NamedQueryHandler
	ProjectionHandler *handlers.ProjectionHandler
}

// NewContainer initializes all services and repositories once
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	// Session store (redis)
	redisRaw := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisClient := rediscommon.NewClient(redisRaw, log)

	// Storage layer
	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	keys := storage.NewKeyGenerator(
		cfg.Storage.Region,
		cfg.Storage.Endpoint,
		cfg.Storage.StorageBucket,
		cfg.Storage.ThumbsBucket,
		cfg.Storage.OutputBucket,
		cfg.Storage.LocalRoot,
	)
	fastDisk := storage.NewFastDisk(cfg.Storage.LocalRoot)
	keyedLocks := locks.New()
	rateLimiter := ratelimit.NewRateLimiter(redisRaw, log)

	// External services
	engineClient := clients.NewEngineClient(cfg.Orchestration.EngineRoot, log)
	fireballClient := clients.NewFireballClient(cfg.NamedQuery.FireballRoot, log)

	// Repositories
	assetRepo := repository.NewAssetRepository(components.DB)
	namedQueryRepo := repository.NewNamedQueryRepository(components.DB)

	// Services (bottom-up: dependencies first)
	tracker := service.NewAssetTracker(assetRepo, components.Cache,
		cfg.Cache.AssetTTL, cfg.Cache.NotFoundTTL, log)
	validator := service.NewAccessValidator(redisClient, log)
	orchestrator := service.NewOrchestrator(tracker, keyedLocks, store, fastDisk, keys,
		engineClient, cfg.Orchestration.LockTimeout, log)
	routing := service.NewRoutingEngine(tracker, validator, orchestrator, keys, log)

	parser := service.NewNamedQueryParser(log)
	conductor := service.NewNamedQueryConductor(namedQueryRepo, assetRepo, parser, log)
	projections := service.NewProjectionManager(store, keys, validator, keyedLocks,
		cfg.NamedQuery.ControlStaleSecs, log)
	pdfCreator := service.NewPDFCreator(store, keys, fireballClient, log)
	zipCreator := service.NewZipCreator(store, keys, cfg.NamedQuery.ScratchRoot, log)

	// Handlers
	forwarder := handlers.NewForwarder(cfg.Proxy.ImageServerRoot, cfg.Proxy.ThumbsRoot, log)
	imageHandler := handlers.NewImageHandler(components, routing, forwarder)
	timeBasedHandler := handlers.NewTimeBasedHandler(components, routing, forwarder)
	fileHandler := handlers.NewFileHandler(components, routing, forwarder)
	namedQueryHandler := handlers.NewNamedQueryHandler(components, conductor)
	projectionHandler := handlers.NewProjectionHandler(components, conductor, projections,
		pdfCreator, zipCreator)

	return &Container{
		Components:        components,
		Redis:             redisClient,
		Store:             store,
		Keys:              keys,
		FastDisk:          fastDisk,
		Locks:             keyedLocks,
		RateLimiter:       rateLimiter,
		AssetRepo:         assetRepo,
		NamedQueryRepo:    namedQueryRepo,
		Tracker:           tracker,
		Validator:         validator,
		Orchestrator:      orchestrator,
		Routing:           routing,
		Conductor:         conductor,
		Projections:       projections,
		PDFCreator:        pdfCreator,
		ZipCreator:        zipCreator,
		Forwarder:         forwarder,
		ImageHandler:      imageHandler,
		TimeBasedHandler:  timeBasedHandler,
		FileHandler:       fileHandler,
		NamedQueryHandler: namedQueryHandler,
		ProjectionHandler: projectionHandler,
	}, nil
}

// Close releases container-owned resources
func (c *Container) Close() error {
	return c.Redis.Close()
}
