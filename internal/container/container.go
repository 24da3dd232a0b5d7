package container

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go-drawing-inspector/internal/analyzer"
	"go-drawing-inspector/internal/config"
	"go-drawing-inspector/internal/factory"
	"go-drawing-inspector/internal/logger"
	"go-drawing-inspector/internal/observer"
	"go-drawing-inspector/internal/recognition/openai"
	"go-drawing-inspector/internal/recognition/tesseract"
	"go-drawing-inspector/internal/repository"
	"go-drawing-inspector/internal/service"
	"go-drawing-inspector/internal/storage"
	"go-drawing-inspector/internal/transport"
	"go-drawing-inspector/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	drawingFetcher  storage.DrawingFetcher
	engine          *analyzer.Engine
	artifacts       repository.ArtifactRepository
	events          *observer.EventPublisher
	redisProgress   *observer.RedisProgressObserver
	analysisService service.DrawingAnalysisService
	handler         http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	store, err := factory.NewStorageFactory(cfg).CreateStore(ctx, cfg.StorageBackend)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}
	artifacts := repository.NewStoreArtifactRepository(store)

	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	defaults, err := factory.NewOptionsFactory(cfg).CreateOptions(factory.StandardPreset)
	if err != nil {
		return nil, err
	}

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	var redisProgress *observer.RedisProgressObserver
	if cfg.RedisHost != "" {
		redisProgress = observer.NewRedisProgressObserver(cfg.RedisHost, cfg.RedisPort, cfg.ProgressChannelPrefix)
		events.Subscribe(redisProgress)
	}

	fetcher := storage.NewHTTPDrawingFetcher(cfg.ImageFetchTimeout)
	validator := validation.NewRequestValidator(validation.NewURLValidator(), validation.DefaultRequestLimits())
	analysisService := service.NewDrawingAnalysisService(fetcher, artifacts, engine, events, validator, defaults, cfg.ImageFetchTimeout)

	return &Container{
		config:          cfg,
		drawingFetcher:  fetcher,
		engine:          engine,
		artifacts:       artifacts,
		events:          events,
		redisProgress:   redisProgress,
		analysisService: analysisService,
		handler:         transport.NewHandler(analysisService, metrics, cfg),
	}, nil
}

// newEngine wires Tesseract as the text channel and the chat completions
// client as both vision channel and overview model
func newEngine(cfg *config.Config) (*analyzer.Engine, error) {
	textOpts := tesseract.DefaultOptions()
	if langs := strings.FieldsFunc(cfg.OCRLanguage, func(r rune) bool { return r == '+' || r == ',' }); len(langs) > 0 {
		textOpts.Languages = langs
	}

	client, err := openai.New(openai.Options{
		BaseURL: cfg.VisionBaseURL,
		Model:   cfg.VisionModel,
		APIKey:  cfg.VisionAPIKey,
		Timeout: cfg.TileTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	return analyzer.NewEngine(tesseract.NewRecognizer(textOpts), client, client)
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases the engine and the progress broker connection
func (c *Container) Close() error {
	err := c.engine.Close()
	if c.redisProgress != nil {
		if rerr := c.redisProgress.Close(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
