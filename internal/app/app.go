// -----------------------------------------------------------------------
// App - dependency wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/common"
	"github.com/ternarybob/leadgen/internal/handlers"
	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/leadgen"
	"github.com/ternarybob/leadgen/internal/services/events"
	"github.com/ternarybob/leadgen/internal/services/llm"
	"github.com/ternarybob/leadgen/internal/services/scheduler"
	"github.com/ternarybob/leadgen/internal/services/sources"
	badgerstorage "github.com/ternarybob/leadgen/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService interfaces.EventService

	// AI provider (Claude / Gemini)
	LLMService interfaces.LLMService

	// Listing source providers
	SourceRegistry interfaces.SourceRegistry

	// Lead generation pipeline
	JobStore       *leadgen.Store
	LeadGenService *leadgen.Service

	// Retention sweeper
	RetentionService *scheduler.RetentionService

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	LeadGenHandler *handlers.LeadGenHandler
	LeadHandler    *handlers.LeadHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		return nil, err
	}

	app.initHandlers()

	if err := app.RetentionService.Start(); err != nil {
		return nil, fmt.Errorf("failed to start retention service: %w", err)
	}

	return app, nil
}

func (a *App) initDatabase() error {
	storageManager, err := badgerstorage.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Jobs left queued or running by an unclean shutdown have no worker
	// anymore; mark them terminal so nothing appears stuck.
	marked, err := a.StorageManager.JobStorage().MarkInterrupted("interrupted by restart")
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to mark interrupted jobs")
	} else if marked > 0 {
		a.Logger.Info().Int("jobs", marked).Msg("Marked interrupted jobs as error")
	}

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)

	a.LLMService = llm.NewProviderFactory(
		&a.Config.Claude,
		&a.Config.Gemini,
		&a.Config.LLM,
		a.StorageManager.KeyValueStorage(),
		a.Logger,
	)

	a.SourceRegistry = sources.NewRegistry(a.Config.Sources, a.Logger)
	if len(a.SourceRegistry.Names()) == 0 {
		a.Logger.Warn().Msg("No listing sources configured; jobs will fail at the fetch stage")
	}

	a.JobStore = leadgen.NewStore(a.StorageManager.JobStorage(), a.Logger)
	a.LeadGenService = leadgen.NewService(
		a.JobStore,
		a.LLMService,
		a.SourceRegistry,
		a.StorageManager.LeadStorage(),
		a.EventService,
		a.Config,
		a.Logger,
	)

	a.RetentionService = scheduler.NewRetentionService(
		&a.Config.Retention,
		a.StorageManager.JobStorage(),
		a.StorageManager.LeadStorage(),
		a.JobStore,
		a.StorageManager.DB(),
		a.Logger,
	)

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.LeadGenHandler = handlers.NewLeadGenHandler(a.LeadGenService, a.Logger)
	a.LeadHandler = handlers.NewLeadHandler(
		a.StorageManager.LeadStorage(),
		a.StorageManager.JobStorage(),
		a.Logger,
	)
}

// Close shuts down services in reverse dependency order
func (a *App) Close() error {
	if a.RetentionService != nil {
		a.RetentionService.Stop()
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage manager")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
