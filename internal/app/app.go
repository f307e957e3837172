// -----------------------------------------------------------------------
// Last Modified: Friday, 21st November 2025 4:47:10 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/events"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/scheduler"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventStream    *events.Stream
	JobService     *jobs.Service
	Sweeper        *scheduler.Sweeper

	// HTTP handlers
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
	SSEHandler *handlers.SSEHandler
	WSHandler  *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.EventStream = events.NewStream(storageManager.EventStorage(), logger)
	app.JobService = jobs.NewService(cfg, storageManager, app.EventStream, logger)

	app.Sweeper = scheduler.NewSweeper(&cfg.Retention, app.JobService, storageManager.CacheStorage(), logger)
	if err := app.Sweeper.Start(); err != nil {
		return nil, fmt.Errorf("failed to start retention sweeper: %w", err)
	}

	app.APIHandler = handlers.NewAPIHandler()
	app.JobHandler = handlers.NewJobHandler(app.JobService, logger)
	app.SSEHandler = handlers.NewSSEHandler(app.JobService, app.EventStream, logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.JobService, app.EventStream, &cfg.WebSocket, logger)

	logger.Info().Msg("Application initialized")

	return app, nil
}

// Close releases all application resources in reverse dependency order
func (a *App) Close() {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.JobService != nil {
		a.JobService.Stop()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
	a.Logger.Info().Msg("Application closed")
}
