package sqlgateway

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/internal/logger"
	"github.com/denismitr/chmigrate/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// SQLGateway executes migration statements and maintains the ledger table.
// Nothing is wrapped in a transaction.
type SQLGateway struct {
	connector SQLConnector
	dialect   Dialect
	lg        logger.Logger
	conn      *sqlx.Conn
}

var _ database.Gateway = (*SQLGateway)(nil)

type ledgerRow struct {
	Name      string    `db:"name"`
	Up        string    `db:"up"`
	Rollback  string    `db:"rollback"`
	AppliedAt time.Time `db:"dt"`
}

func New(connector SQLConnector, dialect Dialect) *SQLGateway {
	return &SQLGateway{
		connector: connector,
		dialect:   dialect,
		lg:        &logger.NullLogger{},
	}
}

func (g *SQLGateway) SetLogger(lg logger.Logger) {
	g.lg = lg
}

func (g *SQLGateway) DatabaseName() string {
	return g.dialect.DatabaseName()
}

// Ping connects if needed and runs the health probe, any failure matches database.ErrServerUnavailable
func (g *SQLGateway) Ping(ctx context.Context) error {
	conn, err := g.connection(ctx)
	if err != nil {
		return err
	}

	g.lg.SQL(healthProbeQuery)

	if err := Ping(ctx, conn); err != nil {
		return database.Unavailable(err)
	}

	return nil
}

func (g *SQLGateway) Exec(ctx context.Context, statement string) error {
	return g.exec(ctx, statement)
}

func (g *SQLGateway) CreateDatabase(ctx context.Context) error {
	q := g.dialect.CreateDatabaseQuery()
	if q == "" {
		g.lg.Debugf("database [%s] is implicit, nothing to create", g.dialect.DatabaseName())
		return nil
	}

	if err := g.exec(ctx, q); err != nil {
		return errors.Wrapf(err, "could not create database [%s]", g.dialect.DatabaseName())
	}

	return nil
}

func (g *SQLGateway) CreateMigrationsTable(ctx context.Context) error {
	if err := g.exec(ctx, g.dialect.InitQuery()); err != nil {
		return errors.Wrap(err, "could not create migrations table")
	}

	return nil
}

func (g *SQLGateway) DropMigrationsTable(ctx context.Context) error {
	if err := g.exec(ctx, g.dialect.DropQuery()); err != nil {
		return errors.Wrap(err, "could not drop migrations table")
	}

	return nil
}

func (g *SQLGateway) ReadApplied(ctx context.Context) ([]string, error) {
	conn, err := g.connection(ctx)
	if err != nil {
		return nil, err
	}

	q := g.dialect.ReadAppliedQuery()
	g.lg.SQL(q)

	var names []string
	if err := conn.SelectContext(ctx, &names, q); err != nil {
		return nil, errors.Wrap(classify(err), "could not read applied migrations")
	}

	return names, nil
}

func (g *SQLGateway) ReadForRollback(ctx context.Context, count int) (migration.Migrations, error) {
	if err := database.ValidateRollbackCount(count); err != nil {
		return nil, err
	}

	conn, err := g.connection(ctx)
	if err != nil {
		return nil, err
	}

	q := g.dialect.ReadForRollbackQuery(count)
	g.lg.SQL(q)

	var rows []ledgerRow
	if err := conn.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(classify(err), "could not read migrations for rollback")
	}

	result := make(migration.Migrations, 0, len(rows))
	for i := range rows {
		result = append(result, &migration.Migration{
			Name:      rows[i].Name,
			Up:        rows[i].Up,
			Rollback:  rows[i].Rollback,
			AppliedAt: rows[i].AppliedAt,
		})
	}

	return result, nil
}

func (g *SQLGateway) WriteApplied(ctx context.Context, m *migration.Migration) error {
	q, args := g.dialect.InsertQuery(m)
	if err := g.exec(ctx, q, args...); err != nil {
		return errors.Wrapf(err, "could not insert migration [%s] into the ledger", m.Name)
	}

	return nil
}

// RemoveApplied deletes the ledger row and reports whether it was there
func (g *SQLGateway) RemoveApplied(ctx context.Context, name string) (bool, error) {
	conn, err := g.connection(ctx)
	if err != nil {
		return false, err
	}

	countQuery, countArgs := g.dialect.CountQuery(name)
	g.lg.SQL(countQuery, countArgs...)

	var count int
	if err := conn.GetContext(ctx, &count, countQuery, countArgs...); err != nil {
		return false, errors.Wrapf(classify(err), "could not look up migration [%s] in the ledger", name)
	}

	if count == 0 {
		return false, nil
	}

	q, args := g.dialect.RemoveQuery(name)
	if err := g.exec(ctx, q, args...); err != nil {
		return false, errors.Wrapf(err, "could not remove migration [%s] from the ledger", name)
	}

	return true, nil
}

func (g *SQLGateway) ShowTables(ctx context.Context) ([]string, error) {
	conn, err := g.connection(ctx)
	if err != nil {
		return nil, err
	}

	q := g.dialect.ShowTablesQuery()
	g.lg.SQL(q)

	var tables []string
	if err := conn.SelectContext(ctx, &tables, q); err != nil {
		return nil, errors.Wrap(classify(err), "could not list all tables")
	}

	return tables, nil
}

func (g *SQLGateway) ShowCreateTable(ctx context.Context, table string) (string, error) {
	conn, err := g.connection(ctx)
	if err != nil {
		return "", err
	}

	q, args := g.dialect.ShowCreateTableQuery(table)
	g.lg.SQL(q, args...)

	var statement string
	if err := conn.GetContext(ctx, &statement, q, args...); err != nil {
		return "", errors.Wrapf(classify(err), "could not show create statement of table [%s]", table)
	}

	return statement, nil
}

func (g *SQLGateway) Close() error {
	g.conn = nil
	return g.connector.Close()
}

func (g *SQLGateway) exec(ctx context.Context, q string, args ...interface{}) error {
	conn, err := g.connection(ctx)
	if err != nil {
		return err
	}

	g.lg.SQL(q, args...)

	if _, err := conn.ExecContext(ctx, q, args...); err != nil {
		return classify(err)
	}

	return nil
}

func (g *SQLGateway) connection(ctx context.Context) (*sqlx.Conn, error) {
	if g.conn != nil {
		return g.conn, nil
	}

	conn, err := g.connector.Connect(ctx)
	if err != nil {
		return nil, database.Unavailable(err)
	}

	g.conn = conn

	return conn, nil
}

// classify marks errors of a broken connection as server unavailability
func classify(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return database.Unavailable(err)
	}

	return err
}
