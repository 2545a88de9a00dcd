package chmigrate

import (
	"database/sql"
	"time"

	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/internal/database/sqlgateway"
	"github.com/denismitr/chmigrate/internal/database/sqlgateway/clickhouse"
	"github.com/jmoiron/sqlx"
)

type ClickHouseOptionFunc func(*clickhouse.Options, *sqlgateway.ConnectOptions)

// UseClickHouse runs migrations against a ClickHouse server. driverName is
// the database/sql driver db was opened with, "clickhouse" for the native
// protocol or "mysql" for the MySQL wire interface.
func UseClickHouse(db *sql.DB, driverName string, options ...ClickHouseOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		chOpts := &clickhouse.Options{
			CommonOptions: database.CommonOptions{
				MigrationsTable: database.DefaultMigrationsTable,
			},
			Database: database.DefaultDatabase,
		}

		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(chOpts, connectOpts)
		}

		connector := sqlgateway.MakeRetryingConnector(sqlx.NewDb(db, driverName), connectOpts)
		m.gateway = sqlgateway.New(connector, clickhouse.NewDialect(chOpts.MigrationsTable, chOpts.Database))

		return nil
	}
}

func WithClickHouseDatabase(name string) ClickHouseOptionFunc {
	return func(chOpts *clickhouse.Options, connectOpts *sqlgateway.ConnectOptions) {
		chOpts.Database = name
	}
}

func WithClickHouseMigrationTable(migrationTable string) ClickHouseOptionFunc {
	return func(chOpts *clickhouse.Options, connectOpts *sqlgateway.ConnectOptions) {
		chOpts.MigrationsTable = migrationTable
	}
}

func WithClickHouseConnectionTimeout(timeout time.Duration) ClickHouseOptionFunc {
	return func(chOpts *clickhouse.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

// WithClickHouseMaxConnectionAttempts enables retries of the initial
// connection, the default is a single attempt
func WithClickHouseMaxConnectionAttempts(attempts int) ClickHouseOptionFunc {
	return func(chOpts *clickhouse.Options, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}
