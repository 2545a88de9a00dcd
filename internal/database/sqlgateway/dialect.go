package sqlgateway

import (
	"github.com/denismitr/chmigrate/migration"
)

// Dialect renders every query the gateway issues against a concrete database
type Dialect interface {
	DatabaseName() string
	// CreateDatabaseQuery returns an empty string when the database is implicit
	CreateDatabaseQuery() string
	InitQuery() string
	DropQuery() string
	InsertQuery(m *migration.Migration) (string, []interface{})
	RemoveQuery(name string) (string, []interface{})
	CountQuery(name string) (string, []interface{})
	ReadAppliedQuery() string
	ReadForRollbackQuery(limit int) string
	ShowTablesQuery() string
	ShowCreateTableQuery(table string) (string, []interface{})
}
