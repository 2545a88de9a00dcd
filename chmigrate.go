package chmigrate

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/internal/database/sqlgateway"
	"github.com/denismitr/chmigrate/internal/engine"
	"github.com/denismitr/chmigrate/internal/logger"
	"github.com/denismitr/chmigrate/internal/snapshot"
	"github.com/denismitr/chmigrate/internal/source"
	"github.com/denismitr/chmigrate/migration"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var (
	ErrGatewayNotInitialized  = errors.New("database gateway has not been initialized")
	ErrSourceTypeIsNotValid   = errors.New("source type is not valid")
	ErrServerUnavailable      = database.ErrServerUnavailable
	ErrDefinitionLoad         = database.ErrDefinitionLoad
	ErrInvalidArgument        = database.ErrInvalidArgument
	ErrStatementExecution     = database.ErrStatementExecution
	ErrMigrationAlreadyExists = source.ErrMigrationAlreadyExists
	ErrFolderInvalid          = source.ErrFolderInvalid
)

type (
	CloserFunc func() error

	// Report lists the migrations a batch applied, skipped or rolled back
	Report = engine.Report

	// Status lists applied migrations in ledger order and pending ones by name
	Status = engine.Status
)

type Migrator struct {
	lg         logger.Logger
	gateway    *sqlgateway.SQLGateway
	selector   source.Selector
	clock      clock.Clock
	folder     string
	schemaFile string
	engine     *engine.Engine
	closerFns  []CloserFunc
}

// NewMigrator creates a migrator from option callbacks and probes the
// database, the migrator is unusable when the probe fails. When no
// source is configured the local ./db/migrations folder is used.
func NewMigrator(ctx context.Context, opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	m := new(Migrator)
	m.lg = &logger.NullLogger{}
	m.clock = clock.New()
	m.folder = source.DefaultMigrationsFolder

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			if closeErr := m.close(); closeErr != nil {
				err = multierror.Append(err, closeErr)
			}

			return nil, nil, err
		}
	}

	if m.gateway == nil {
		return nil, nil, ErrGatewayNotInitialized
	}

	m.gateway.SetLogger(m.lg)

	if m.selector == nil {
		m.selector = source.NewLocalFSSource(m.folder, m.lg)
	}

	if m.schemaFile == "" {
		m.schemaFile = snapshot.PathFor(m.folder)
	}

	if err := m.gateway.Ping(ctx); err != nil {
		m.lg.Error(err)

		if closeErr := m.close(); closeErr != nil {
			m.lg.Error(closeErr)
		}

		return nil, nil, err
	}

	m.engine = engine.New(
		m.selector,
		m.gateway,
		snapshot.New(m.gateway, m.schemaFile, m.lg),
		m.lg,
	)

	return m, m.close, nil
}

// Init prepares the migrations folder, the database and the ledger table,
// then writes the schema snapshot. It is safe to call repeatedly.
func (m *Migrator) Init(ctx context.Context) error {
	if s, ok := m.selector.(source.Source); ok {
		if err := s.EnsureFolder(); err != nil {
			m.lg.Error(err)
			return err
		}
	}

	if err := m.gateway.CreateDatabase(ctx); err != nil {
		m.lg.Error(err)
		return err
	}

	if err := m.gateway.CreateMigrationsTable(ctx); err != nil {
		m.lg.Error(err)
		return err
	}

	if err := m.Snapshot(ctx); err != nil {
		return err
	}

	m.lg.Successf("migrations directory %s successfully initialized", m.folder)

	return nil
}

// Migrate applies pending migrations, WithSteps limits how many,
// zero steps means all of them
func (m *Migrator) Migrate(ctx context.Context, cfs ...ActionConfigurator) (Report, error) {
	act := newAction(cfs...)

	report, err := m.engine.Apply(ctx, act.steps)
	if err != nil {
		return report, errors.Wrap(err, "could not apply migrations")
	}

	return report, nil
}

// Rollback reverts the most recently applied migration, or as many as WithSteps says
func (m *Migrator) Rollback(ctx context.Context, cfs ...ActionConfigurator) (Report, error) {
	act := newAction(cfs...)

	count := 1
	if act.limited {
		count = act.steps
	}

	report, err := m.engine.Rollback(ctx, count)
	if err != nil {
		return report, errors.Wrap(err, "could not rollback migrations")
	}

	return report, nil
}

func (m *Migrator) Status(ctx context.Context) (Status, error) {
	status, err := m.engine.Status(ctx)
	if err != nil {
		m.lg.Error(err)
		return status, errors.Wrap(err, "could not read migrations status")
	}

	return status, nil
}

// Snapshot regenerates the schema file from the live database
func (m *Migrator) Snapshot(ctx context.Context) error {
	s := snapshot.New(m.gateway, m.schemaFile, m.lg)
	if err := s.Write(ctx); err != nil {
		m.lg.Error(err)
		return err
	}

	return nil
}

// CreateMigration writes a new empty definition named after the current
// time and the optional label and returns its path
func (m *Migrator) CreateMigration(label string) (string, error) {
	s, ok := m.selector.(source.Source)
	if !ok {
		return "", ErrSourceTypeIsNotValid
	}

	path, err := s.Create(migration.GenerateName(m.clock, label))
	if err != nil {
		m.lg.Error(err)
		return "", err
	}

	m.lg.Successf("migration %s has been created", path)

	return path, nil
}

// SchemaFile is where snapshots are written
func (m *Migrator) SchemaFile() string {
	return m.schemaFile
}

func (m *Migrator) close() error {
	var result error

	if m.gateway != nil {
		if err := m.gateway.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for i := len(m.closerFns) - 1; i >= 0; i-- {
		if err := m.closerFns[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}

	m.closerFns = nil

	return result
}
