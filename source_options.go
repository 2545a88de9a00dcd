package chmigrate

import (
	"github.com/benbjohnson/clock"
	"github.com/denismitr/chmigrate/internal/source"
	"github.com/denismitr/chmigrate/migration"
)

// UseLocalFolderSource reads definitions from folder, the schema file goes to its parent
func UseLocalFolderSource(folder string) OptionFunc {
	return func(m *Migrator) error {
		if folder != "" {
			m.folder = folder
		}

		// built in NewMigrator once the logger is known
		m.selector = nil
		return nil
	}
}

func UseInMemorySource(factories ...migration.Factory) OptionFunc {
	return func(m *Migrator) error {
		s, err := source.NewInMemorySource(factories...)
		if err != nil {
			return err
		}

		m.selector = s
		return nil
	}
}

// UseSchemaFile overrides where the schema snapshot is written
func UseSchemaFile(path string) OptionFunc {
	return func(m *Migrator) error {
		m.schemaFile = path
		return nil
	}
}

// UseClock sets the clock new migration names are generated from
func UseClock(c clock.Clock) OptionFunc {
	return func(m *Migrator) error {
		m.clock = c
		return nil
	}
}
