package cli

import (
	"context"
	"log"
	"os"
	"strings"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/denismitr/chmigrate"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/xo/dburl"
)

type (
	migratorFactory    func(ctx context.Context, cfg Config, u *dburl.URL) (*chmigrate.Migrator, chmigrate.CloserFunc, error)
	migratorFactoryMap map[string]migratorFactory
)

var ErrUnknownDriver = errors.New("unknown database driver")

func createClickHouseMigrator(ctx context.Context, cfg Config, u *dburl.URL) (*chmigrate.Migrator, chmigrate.CloserFunc, error) {
	db, err := sqlx.Open("clickhouse", u.URL.String())
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not open clickhouse connection")
	}

	return chmigrate.NewMigrator(
		ctx,
		chmigrate.WithCloser(db.Close),
		chmigrate.UseClickHouse(db.DB, "clickhouse", chmigrate.WithClickHouseDatabase(databaseName(u))),
		chmigrate.UseLocalFolderSource(cfg.MigrationsFolder),
		chmigrate.UseColorLogger(log.New(os.Stdout, "", 0), cfg.Verbose, cfg.Verbose),
	)
}

// createMySQLWireMigrator talks to the MySQL compatible interface of a ClickHouse server
func createMySQLWireMigrator(ctx context.Context, cfg Config, u *dburl.URL) (*chmigrate.Migrator, chmigrate.CloserFunc, error) {
	db, err := sqlx.Open("mysql", mysqlWireDSN(u.DSN))
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not open mysql wire connection")
	}

	return chmigrate.NewMigrator(
		ctx,
		chmigrate.WithCloser(db.Close),
		chmigrate.UseClickHouse(db.DB, "mysql", chmigrate.WithClickHouseDatabase(databaseName(u))),
		chmigrate.UseLocalFolderSource(cfg.MigrationsFolder),
		chmigrate.UseColorLogger(log.New(os.Stdout, "", 0), cfg.Verbose, cfg.Verbose),
	)
}

func createSqliteMigrator(ctx context.Context, cfg Config, u *dburl.URL) (*chmigrate.Migrator, chmigrate.CloserFunc, error) {
	db, err := sqlx.Open("sqlite3", u.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not open sqlite database")
	}

	return chmigrate.NewMigrator(
		ctx,
		chmigrate.WithCloser(db.Close),
		chmigrate.UseSqlite(db.DB),
		chmigrate.UseLocalFolderSource(cfg.MigrationsFolder),
		chmigrate.UseColorLogger(log.New(os.Stdout, "", 0), cfg.Verbose, cfg.Verbose),
	)
}

func createMigrator(ctx context.Context, cfg Config) (*chmigrate.Migrator, chmigrate.CloserFunc, error) {
	factoryMap := make(migratorFactoryMap)
	factoryMap["clickhouse"] = createClickHouseMigrator
	factoryMap["mysql"] = createMySQLWireMigrator
	factoryMap["sqlite3"] = createSqliteMigrator

	u, err := dburl.Parse(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrUnknownDriver, "could not parse database url: %v", err)
	}

	return createMigratorFrom(ctx, u, factoryMap, cfg)
}

func createMigratorFrom(
	ctx context.Context,
	u *dburl.URL,
	factoryMap migratorFactoryMap,
	cfg Config,
) (*chmigrate.Migrator, chmigrate.CloserFunc, error) {
	factory, ok := factoryMap[u.Driver]
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnknownDriver, "could not find factory for driver [%s]", u.Driver)
	}

	return factory(ctx, cfg, u)
}

// mysqlWireDSN makes the driver bind query arguments on the client,
// the MySQL interface of ClickHouse does not bind prepared statement parameters
func mysqlWireDSN(dsn string) string {
	params := "parseTime=true&interpolateParams=true"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}

	return dsn + "?" + params
}

func databaseName(u *dburl.URL) string {
	return strings.Trim(u.Path, "/")
}
