package clickhouse

import (
	"testing"

	"github.com/denismitr/chmigrate/migration"
	"github.com/stretchr/testify/assert"
)

func TestDialect(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		d := NewDialect("", "")

		assert.Equal(t, "default", d.DatabaseName())
		assert.Equal(t, "", d.CreateDatabaseQuery())
		assert.Equal(t, "DROP TABLE IF EXISTS db_migrations", d.DropQuery())
	})

	t.Run("ledger table is created with the shared layout", func(t *testing.T) {
		d := NewDialect("db_migrations", "analytics")

		assert.Equal(t, `
        CREATE TABLE IF NOT EXISTS db_migrations (
            name String,
            up String,
            rollback String,
            dt DateTime64 DEFAULT now()
        )
        Engine MergeTree()
        ORDER BY dt
        `, d.InitQuery())
	})

	t.Run("custom database is created if missing", func(t *testing.T) {
		d := NewDialect("", "analytics")
		assert.Equal(t, "CREATE DATABASE IF NOT EXISTS `analytics`", d.CreateDatabaseQuery())
	})

	t.Run("ledger queries", func(t *testing.T) {
		d := NewDialect("migrations_ledger", "analytics")
		m := &migration.Migration{Name: "20240101_a.yml", Up: "CREATE TABLE t1", Rollback: "DROP TABLE t1"}

		q, args := d.InsertQuery(m)
		assert.Equal(t, "INSERT INTO migrations_ledger (name, up, rollback) VALUES (?, ?, ?)", q)
		assert.Equal(t, []interface{}{"20240101_a.yml", "CREATE TABLE t1", "DROP TABLE t1"}, args)

		q, args = d.RemoveQuery("20240101_a.yml")
		assert.Equal(t, "DELETE FROM migrations_ledger WHERE name = ?", q)
		assert.Equal(t, []interface{}{"20240101_a.yml"}, args)

		q, _ = d.CountQuery("20240101_a.yml")
		assert.Equal(t, "SELECT count() FROM migrations_ledger WHERE name = ?", q)

		assert.Equal(t, "SELECT name FROM migrations_ledger ORDER BY dt ASC, name ASC", d.ReadAppliedQuery())
		assert.Equal(t,
			"SELECT name, up, rollback, dt FROM migrations_ledger ORDER BY dt DESC, name DESC LIMIT 3",
			d.ReadForRollbackQuery(3),
		)
	})

	t.Run("schema inspection", func(t *testing.T) {
		d := NewDialect("", "")

		assert.Equal(t, "SHOW TABLES", d.ShowTablesQuery())

		q, args := d.ShowCreateTableQuery("events")
		assert.Equal(t, "SHOW CREATE TABLE `events`", q)
		assert.Nil(t, args)

		q, _ = d.ShowCreateTableQuery("we`ird")
		assert.Equal(t, "SHOW CREATE TABLE `we\\`ird`", q)
	})
}
