package sqlite

import (
	"fmt"

	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/internal/database/sqlgateway"
	"github.com/denismitr/chmigrate/migration"
)

const databaseName = "main"

type Options struct {
	database.CommonOptions
}

// Dialect keeps the ledger in SQLite with the same columns as the ClickHouse one
type Dialect struct {
	migrationsTable string
}

var _ sqlgateway.Dialect = (*Dialect)(nil)

func NewDialect(migrationsTable string) *Dialect {
	if migrationsTable == "" {
		migrationsTable = database.DefaultMigrationsTable
	}

	return &Dialect{migrationsTable: migrationsTable}
}

func (d Dialect) DatabaseName() string {
	return databaseName
}

func (d Dialect) CreateDatabaseQuery() string {
	return ""
}

func (d Dialect) InitQuery() string {
	const sqliteCreateMigrationsTable = `
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			up TEXT NOT NULL DEFAULT '',
			"rollback" TEXT NOT NULL DEFAULT '',
			dt TIMESTAMP NOT NULL DEFAULT (strftime('%%Y-%%m-%%d %%H:%%M:%%f', 'now'))
		)
	`

	return fmt.Sprintf(sqliteCreateMigrationsTable, d.migrationsTable)
}

func (d Dialect) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", d.migrationsTable)
}

func (d Dialect) InsertQuery(m *migration.Migration) (string, []interface{}) {
	q := fmt.Sprintf(`INSERT INTO %s (name, up, "rollback") VALUES (?, ?, ?)`, d.migrationsTable)
	return q, []interface{}{m.Name, m.Up, m.Rollback}
}

func (d Dialect) RemoveQuery(name string) (string, []interface{}) {
	q := fmt.Sprintf("DELETE FROM %s WHERE name = ?", d.migrationsTable)
	return q, []interface{}{name}
}

func (d Dialect) CountQuery(name string) (string, []interface{}) {
	q := fmt.Sprintf("SELECT count(*) FROM %s WHERE name = ?", d.migrationsTable)
	return q, []interface{}{name}
}

func (d Dialect) ReadAppliedQuery() string {
	return fmt.Sprintf("SELECT name FROM %s ORDER BY dt ASC, name ASC", d.migrationsTable)
}

func (d Dialect) ReadForRollbackQuery(limit int) string {
	return fmt.Sprintf(
		`SELECT name, up, "rollback", dt FROM %s ORDER BY dt DESC, name DESC LIMIT %d`,
		d.migrationsTable, limit,
	)
}

func (d Dialect) ShowTablesQuery() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
}

func (d Dialect) ShowCreateTableQuery(table string) (string, []interface{}) {
	return "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", []interface{}{table}
}
