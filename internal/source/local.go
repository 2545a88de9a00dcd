package source

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/denismitr/chmigrate/internal/database"
	"github.com/denismitr/chmigrate/internal/logger"
	"github.com/denismitr/chmigrate/migration"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const DefaultMigrationsFolder = "./db/migrations"

const definitionStub = `# Statements are separated by ";" and executed one by one, in order.
# A migration with an empty up section is skipped and stays pending.
up: ""
rollback: ""
`

type definition struct {
	Up       string `yaml:"up"`
	Rollback string `yaml:"rollback"`
}

type LocalFileSource struct {
	folder string
	lg     logger.Logger
}

var _ Source = (*LocalFileSource)(nil)

func NewLocalFSSource(folder string, lg logger.Logger) *LocalFileSource {
	if folder == "" {
		folder = DefaultMigrationsFolder
	}

	if lg == nil {
		lg = &logger.NullLogger{}
	}

	return &LocalFileSource{folder: filepath.Clean(folder), lg: lg}
}

func (lfs *LocalFileSource) Folder() string {
	return lfs.folder
}

func (lfs *LocalFileSource) IsValid() bool {
	info, err := os.Stat(lfs.folder)
	if os.IsNotExist(err) {
		return false
	}

	return err == nil && info.IsDir()
}

func (lfs *LocalFileSource) EnsureFolder() error {
	if err := os.MkdirAll(lfs.folder, 0755); err != nil {
		return errors.Wrapf(err, "could not create migrations folder [%s]", lfs.folder)
	}

	return nil
}

func (lfs *LocalFileSource) AlreadyExists(name string) bool {
	_, err := os.Stat(filepath.Join(lfs.folder, name))
	return err == nil
}

// Create writes the stub definition, an existing file is never overwritten
func (lfs *LocalFileSource) Create(name string) (string, error) {
	if !lfs.IsValid() {
		return "", errors.Wrapf(ErrFolderInvalid, "%s", lfs.folder)
	}

	if err := validateName(name); err != nil {
		return "", err
	}

	path := filepath.Join(lfs.folder, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return "", errors.Wrapf(ErrMigrationAlreadyExists, "%s", path)
		}

		return "", errors.Wrapf(err, "could not create file [%s]", path)
	}

	if _, err := f.WriteString(definitionStub); err != nil {
		_ = f.Close()
		return "", errors.Wrapf(err, "could not write file [%s]", path)
	}

	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "could not close file [%s]", path)
	}

	return path, nil
}

func (lfs *LocalFileSource) ListNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := ioutil.ReadDir(lfs.folder)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read migrations from folder [%s]", lfs.folder)
	}

	var names []string
	for i := range files {
		if files[i].IsDir() || !strings.HasSuffix(files[i].Name(), migration.Extension) {
			continue
		}

		names = append(names, files[i].Name())
	}

	return names, nil
}

func (lfs *LocalFileSource) Load(ctx context.Context, name string) (*migration.Migration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := validateName(name); err != nil {
		return nil, &database.DefinitionError{Name: name, Err: err}
	}

	lfs.lg.Debugf("loading migration definition %s", name)

	contents, err := ioutil.ReadFile(filepath.Join(lfs.folder, name))
	if err != nil {
		return nil, &database.DefinitionError{Name: name, Err: err}
	}

	return parseDefinition(name, contents)
}

func parseDefinition(name string, contents []byte) (*migration.Migration, error) {
	var d definition
	if err := yaml.UnmarshalStrict(contents, &d); err != nil {
		return nil, &database.DefinitionError{Name: name, Err: err}
	}

	return &migration.Migration{
		Name:     name,
		Up:       d.Up,
		Rollback: d.Rollback,
	}, nil
}

func validateName(name string) error {
	if name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, migration.Extension) {
		return errors.Errorf("[%s] is not a valid migration file name", name)
	}

	return nil
}
