package migration

import (
	"bytes"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// Extension is the only file extension recognised as a migration definition
	Extension = ".yml"

	// NameTimestampFormat is a lexically sortable, second precision timestamp
	NameTimestampFormat = "20060102150405"

	StatementSeparator = ";"
)

type (
	Migration struct {
		Name      string
		Up        string
		Rollback  string
		AppliedAt time.Time
	}

	Factory func() (*Migration, error)
)

func New(name, up, rollback string) Factory {
	return func() (*Migration, error) {
		return &Migration{
			Name:     name,
			Up:       up,
			Rollback: rollback,
		}, nil
	}
}

// IsEmpty reports whether the up body has nothing to execute
func (m *Migration) IsEmpty() bool {
	return strings.TrimSpace(m.Up) == ""
}

func (m *Migration) Statements() []string {
	return SplitStatements(m.Up)
}

func (m *Migration) RollbackStatements() []string {
	return SplitStatements(m.Rollback)
}

// SplitStatements splits a raw body on the statement separator, drops
// fragments that are blank after trimming and keeps the original order.
// Separators inside string literals are not recognised.
func SplitStatements(body string) []string {
	var result []string

	for _, fragment := range strings.Split(body, StatementSeparator) {
		stmt := strings.TrimSpace(fragment)
		if stmt == "" {
			continue
		}

		result = append(result, stmt)
	}

	return result
}

type Migrations []*Migration

func NewMigrations(factories ...Factory) (Migrations, error) {
	migrations := make(Migrations, len(factories))

	for i := range factories {
		m, err := factories[i]()
		if err != nil {
			return nil, err
		}

		migrations[i] = m
	}

	return migrations, nil
}

func (m Migrations) Names() (result []string) {
	for i := range m {
		result = append(result, m[i].Name)
	}
	return result
}

func (m Migrations) Len() int {
	return len(m)
}

func (m Migrations) Less(i, j int) bool {
	return m[i].Name < m[j].Name
}

func (m Migrations) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

// GenerateName builds a new definition file name from the clock and an
// optional human label, e.g. 20240101120000_create_events.yml
func GenerateName(c clock.Clock, label string) string {
	var result bytes.Buffer
	result.WriteString(c.Now().Format(NameTimestampFormat))

	label = normalizeLabel(label)
	if label != "" {
		result.WriteString("_")
		result.WriteString(label)
	}

	result.WriteString(Extension)
	return result.String()
}

func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, Extension)
	return strings.Replace(strings.ToLower(label), " ", "_", -1)
}
