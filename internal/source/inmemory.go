package source

import (
	"context"

	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/migration"
	"github.com/pkg/errors"
)

var (
	ErrNoMigrations       = errors.New("no migrations")
	ErrDuplicateMigration = errors.New("duplicate migration name")
)

// InMemorySource serves definitions that were built in code
type InMemorySource struct {
	migrations map[string]*migration.Migration
}

var _ Selector = (*InMemorySource)(nil)

func NewInMemorySource(factories ...migration.Factory) (*InMemorySource, error) {
	migrations, err := migration.NewMigrations(factories...)
	if err != nil {
		return nil, err
	}

	s := &InMemorySource{migrations: make(map[string]*migration.Migration, len(migrations))}
	for _, m := range migrations {
		if _, ok := s.migrations[m.Name]; ok {
			return nil, errors.Wrapf(ErrDuplicateMigration, "%s", m.Name)
		}

		s.migrations[m.Name] = m
	}

	return s, nil
}

func (s *InMemorySource) ListNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(s.migrations))
	for name := range s.migrations {
		names = append(names, name)
	}

	return names, nil
}

func (s *InMemorySource) Load(ctx context.Context, name string) (*migration.Migration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, ok := s.migrations[name]
	if !ok {
		return nil, &database.DefinitionError{Name: name, Err: ErrNoMigrations}
	}

	loaded := *m
	return &loaded, nil
}
