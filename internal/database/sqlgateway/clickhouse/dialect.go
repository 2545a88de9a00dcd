package clickhouse

import (
	"fmt"
	"strings"

	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/internal/database/sqlgateway"
	"github.com/denismitr/chmigrate/migration"
)

type Options struct {
	database.CommonOptions
	Database string
}

type Dialect struct {
	migrationsTable string
	database        string
}

var _ sqlgateway.Dialect = (*Dialect)(nil)

func NewDialect(migrationsTable, db string) *Dialect {
	if migrationsTable == "" {
		migrationsTable = database.DefaultMigrationsTable
	}

	if db == "" {
		db = database.DefaultDatabase
	}

	return &Dialect{migrationsTable: migrationsTable, database: db}
}

func (d Dialect) DatabaseName() string {
	return d.database
}

func (d Dialect) CreateDatabaseQuery() string {
	if d.database == database.DefaultDatabase {
		return ""
	}

	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", quote(d.database))
}

// InitQuery must stay byte compatible with other implementations sharing the ledger
func (d Dialect) InitQuery() string {
	const createMigrationsTable = `
        CREATE TABLE IF NOT EXISTS %s (
            name String,
            up String,
            rollback String,
            dt DateTime64 DEFAULT now()
        )
        Engine MergeTree()
        ORDER BY dt
        `

	return fmt.Sprintf(createMigrationsTable, d.migrationsTable)
}

func (d Dialect) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", d.migrationsTable)
}

func (d Dialect) InsertQuery(m *migration.Migration) (string, []interface{}) {
	q := fmt.Sprintf("INSERT INTO %s (name, up, rollback) VALUES (?, ?, ?)", d.migrationsTable)
	return q, []interface{}{m.Name, m.Up, m.Rollback}
}

func (d Dialect) RemoveQuery(name string) (string, []interface{}) {
	q := fmt.Sprintf("DELETE FROM %s WHERE name = ?", d.migrationsTable)
	return q, []interface{}{name}
}

func (d Dialect) CountQuery(name string) (string, []interface{}) {
	q := fmt.Sprintf("SELECT count() FROM %s WHERE name = ?", d.migrationsTable)
	return q, []interface{}{name}
}

func (d Dialect) ReadAppliedQuery() string {
	return fmt.Sprintf("SELECT name FROM %s ORDER BY dt ASC, name ASC", d.migrationsTable)
}

// ReadForRollbackQuery breaks dt ties by name, the now() default fills dt with whole seconds
func (d Dialect) ReadForRollbackQuery(limit int) string {
	return fmt.Sprintf(
		"SELECT name, up, rollback, dt FROM %s ORDER BY dt DESC, name DESC LIMIT %d",
		d.migrationsTable, limit,
	)
}

func (d Dialect) ShowTablesQuery() string {
	return "SHOW TABLES"
}

func (d Dialect) ShowCreateTableQuery(table string) (string, []interface{}) {
	return "SHOW CREATE TABLE " + quote(table), nil
}

func quote(identifier string) string {
	return "`" + strings.Replace(identifier, "`", "\\`", -1) + "`"
}
