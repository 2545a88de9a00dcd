package snapshot

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/internal/logger"
	"github.com/facebookgo/atomicfile"
	"github.com/pkg/errors"
)

const (
	Header   = "---- Database schema ----"
	FileName = "schema.sql"
)

var createDirective = regexp.MustCompile(`(?i)^(\s*CREATE\s+(?:TABLE|VIEW|MATERIALIZED\s+VIEW|DICTIONARY))\s+(?:IF\s+NOT\s+EXISTS\s+)?`)

// Snapshotter dumps the definition of every live table to a schema file
type Snapshotter struct {
	inspector database.Inspector
	path      string
	lg        logger.Logger
}

func New(inspector database.Inspector, path string, lg logger.Logger) *Snapshotter {
	if lg == nil {
		lg = &logger.NullLogger{}
	}

	return &Snapshotter{inspector: inspector, path: path, lg: lg}
}

// PathFor places the schema file next to the migrations folder
func PathFor(migrationsFolder string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(migrationsFolder)), FileName)
}

// Render builds the snapshot document without touching the file
func (s *Snapshotter) Render(ctx context.Context) (string, error) {
	tables, err := s.inspector.ShowTables(ctx)
	if err != nil {
		return "", errors.Wrap(err, "could not render schema snapshot")
	}

	blocks := make([]string, 0, len(tables)+1)
	blocks = append(blocks, Header)

	for _, table := range tables {
		statement, err := s.inspector.ShowCreateTable(ctx, table)
		if err != nil {
			return "", errors.Wrap(err, "could not render schema snapshot")
		}

		blocks = append(blocks, Idempotent(statement)+";")
	}

	return strings.Join(blocks, "\n\n"), nil
}

// Write replaces the schema file wholesale, a failed render leaves the previous file intact
func (s *Snapshotter) Write(ctx context.Context) error {
	doc, err := s.Render(ctx)
	if err != nil {
		return err
	}

	if err := writeAtomically(s.path, doc); err != nil {
		return err
	}

	s.lg.Successf("writing schema %s", s.path)

	return nil
}

// Idempotent rewrites a leading unconditional CREATE into CREATE ... IF NOT EXISTS
func Idempotent(statement string) string {
	statement = strings.TrimRight(strings.TrimSpace(statement), ";")
	return createDirective.ReplaceAllString(statement, "$1 IF NOT EXISTS ")
}

func writeAtomically(path, doc string) error {
	f, err := atomicfile.New(path, 0644)
	if err != nil {
		return errors.Wrapf(err, "could not open schema file [%s]", path)
	}

	if _, err := f.Write([]byte(doc)); err != nil {
		_ = f.Abort()
		return errors.Wrapf(err, "could not write schema file [%s]", path)
	}

	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "could not replace schema file [%s]", path)
	}

	return nil
}
