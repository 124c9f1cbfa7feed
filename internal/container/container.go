package container

import (
	"fmt"
	"net/http"

	"go-pneumonet-api/internal/classifier"
	"go-pneumonet-api/internal/config"
	"go-pneumonet-api/internal/imaging"
	"go-pneumonet-api/internal/service"
	"go-pneumonet-api/internal/storage"
	"go-pneumonet-api/internal/threshold"
	"go-pneumonet-api/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	classifier *classifier.Adapter
	thresholds *threshold.Store
	archive    *storage.ArchiveQueue
	service    service.PredictionService
	handler    http.Handler
}

// New builds the dependency graph. A model that fails to load does not fail
// construction; the classifier comes up in degraded mode.
func New(cfg *config.Config) (*Container, error) {
	adapter := classifier.New(cfg.ModelPath, cfg.ModelMetadataPath)

	thresholds, err := threshold.New(cfg.DefaultThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize threshold store: %w", err)
	}

	archiver, err := buildArchiver(cfg)
	if err != nil {
		return nil, err
	}
	archive := storage.NewArchiveQueue(archiver, cfg.ArchiveWorkers)
	archive.Start()

	decoder := imaging.NewDecoder(cfg.MaxUploadBytes)
	preprocessor := imaging.NewPreprocessor(adapter.Info().ImageSize, cfg.PixelScale)

	svc := service.New(decoder, preprocessor, adapter, thresholds, archive)
	handler := transport.NewHandler(svc, cfg)

	return &Container{
		config:     cfg,
		classifier: adapter,
		thresholds: thresholds,
		archive:    archive,
		service:    svc,
		handler:    handler,
	}, nil
}

func buildArchiver(cfg *config.Config) (storage.Archiver, error) {
	switch cfg.ArchiveBackend {
	case config.ArchiveDisk:
		return storage.NewDiskArchiver(cfg.ArchiveDir)
	case config.ArchiveAzure:
		return storage.NewAzureArchiver(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer)
	default:
		return storage.NopArchiver{}, nil
	}
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases background workers and the inference session.
func (c *Container) Close() {
	c.archive.Close()
	c.classifier.Close()
}
