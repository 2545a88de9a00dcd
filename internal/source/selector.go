package source

import (
	"context"

	"github.com/denismitr/chmigrate/migration"
	"github.com/pkg/errors"
)

var (
	ErrMigrationAlreadyExists = errors.New("migration already exists")
	ErrFolderInvalid          = errors.New("migrations folder is invalid")
)

// Selector lists and loads migration definitions
type Selector interface {
	ListNames(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) (*migration.Migration, error)
}

// Source is a Selector backed by a folder that new definitions can be created in
type Source interface {
	Selector

	Folder() string
	IsValid() bool
	EnsureFolder() error
	AlreadyExists(name string) bool
	Create(name string) (string, error)
}
