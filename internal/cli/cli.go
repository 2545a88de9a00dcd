package cli

import (
	"context"

	"github.com/denismitr/chmigrate"
)

type (
	ActionConfig struct {
		Steps int
	}

	App struct {
		migrator *chmigrate.Migrator
	}
)

// New connects to the configured database, the returned closer releases the connection
func New(ctx context.Context, cfg Config) (*App, chmigrate.CloserFunc, error) {
	m, closer, err := createMigrator(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	return &App{migrator: m}, closer, nil
}

func (app *App) Init(ctx context.Context) error {
	return app.migrator.Init(ctx)
}

func (app *App) CreateMigration(label string) (string, error) {
	return app.migrator.CreateMigration(label)
}

func (app *App) Migrate(ctx context.Context, cfg ActionConfig) (chmigrate.Report, error) {
	var configurators []chmigrate.ActionConfigurator
	if cfg.Steps != 0 {
		configurators = append(configurators, chmigrate.WithSteps(cfg.Steps))
	}

	return app.migrator.Migrate(ctx, configurators...)
}

// Rollback reverts a single migration unless steps say otherwise
func (app *App) Rollback(ctx context.Context, cfg ActionConfig) (chmigrate.Report, error) {
	var configurators []chmigrate.ActionConfigurator
	if cfg.Steps != 0 {
		configurators = append(configurators, chmigrate.WithSteps(cfg.Steps))
	}

	return app.migrator.Rollback(ctx, configurators...)
}

func (app *App) Status(ctx context.Context) (chmigrate.Status, error) {
	return app.migrator.Status(ctx)
}

func (app *App) SchemaFile() string {
	return app.migrator.SchemaFile()
}
