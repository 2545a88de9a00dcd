package database

import (
	"context"
	"sort"

	"github.com/denismitr/chmigrate/migration"
	"github.com/pkg/errors"
)

const (
	DefaultMigrationsTable = "db_migrations"
	DefaultDatabase        = "default"
)

type CommonOptions struct {
	MigrationsTable string
}

// Ledger keeps track of applied migrations, it is the only source of truth
// about what has been applied
type Ledger interface {
	ReadApplied(ctx context.Context) ([]string, error)
	ReadForRollback(ctx context.Context, count int) (migration.Migrations, error)
	WriteApplied(ctx context.Context, m *migration.Migration) error
	RemoveApplied(ctx context.Context, name string) (bool, error)
}

type Executor interface {
	Exec(ctx context.Context, statement string) error
}

type Inspector interface {
	ShowTables(ctx context.Context) ([]string, error)
	ShowCreateTable(ctx context.Context, table string) (string, error)
}

// Gateway is everything the migrator needs from the target database
type Gateway interface {
	Ledger
	Executor
	Inspector

	Ping(ctx context.Context) error
	DatabaseName() string
	CreateDatabase(ctx context.Context) error
	CreateMigrationsTable(ctx context.Context) error
	DropMigrationsTable(ctx context.Context) error
	Close() error
}

// SchedulePending computes the sorted set difference between definition
// names and applied names. A positive limit keeps only the first limit
// entries, zero means no limit.
func SchedulePending(definitions []string, applied []string, limit int) ([]string, error) {
	if limit < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "limit must not be negative, got %d", limit)
	}

	done := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		done[name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(definitions))
	var pending []string

	for _, name := range definitions {
		if _, ok := done[name]; ok {
			continue
		}

		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		pending = append(pending, name)
	}

	sort.Strings(pending)

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

// ValidateRollbackCount rejects non positive rollback counts
func ValidateRollbackCount(count int) error {
	if count <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "rollback count must be positive, got %d", count)
	}

	return nil
}
