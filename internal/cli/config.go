package cli

import (
	"io/ioutil"
	"os"
	"strings"

	"github.com/denismitr/chmigrate/internal/source"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	EnvDatabaseURL      = "CLICKHOUSE_MIGRATE_URL"
	EnvMigrationsFolder = "CLICKHOUSE_MIGRATE_DIR"

	DefaultDatabaseURL = "clickhouse://default@127.0.0.1:9000/default"
	DefaultConfigFile  = "chmigrate.yml"
)

var ErrConfigInvalid = errors.New("chmigrate configuration is invalid")

const configFileStub = `version: "1"
migrations:
  # a value wrapped in %% is read from the environment variable of that name
  database_url: "%%CLICKHOUSE_MIGRATE_URL%%"
  local_folder: ./db/migrations
`

type (
	Config struct {
		DatabaseURL      string
		MigrationsFolder string
		Verbose          bool
	}

	migrations struct {
		LocalFolder string `yaml:"local_folder"`
		DatabaseURL string `yaml:"database_url"`
	}

	configFile struct {
		Version    string     `yaml:"version"`
		Migrations migrations `yaml:"migrations"`
	}
)

// ResolveConfig builds the configuration from the defaults, the optional
// yaml file at path, the environment and finally the explicitly given
// values, each one overriding the previous where it is not empty
func ResolveConfig(path string, explicit Config) (Config, error) {
	cfg := Config{
		DatabaseURL:      DefaultDatabaseURL,
		MigrationsFolder: source.DefaultMigrationsFolder,
		Verbose:          explicit.Verbose,
	}

	if path != "" {
		fromFile, err := createConfigFromYaml(path)
		if err != nil {
			return cfg, err
		}

		cfg = override(cfg, fromFile)
	}

	cfg = override(cfg, Config{
		DatabaseURL:      os.Getenv(EnvDatabaseURL),
		MigrationsFolder: os.Getenv(EnvMigrationsFolder),
	})

	return override(cfg, explicit), nil
}

func override(cfg, with Config) Config {
	if with.DatabaseURL != "" {
		cfg.DatabaseURL = with.DatabaseURL
	}

	if with.MigrationsFolder != "" {
		cfg.MigrationsFolder = with.MigrationsFolder
	}

	return cfg
}

func createConfigFromYaml(path string) (Config, error) {
	var cfg Config

	b, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read chmigrate configuration file")
	}

	var cfgFile configFile
	if err := yaml.UnmarshalStrict(b, &cfgFile); err != nil {
		return cfg, errors.Wrapf(ErrConfigInvalid, "could not parse [%s]: %v", path, err)
	}

	cfg.DatabaseURL = fromEnvIfWrapped(cfgFile.Migrations.DatabaseURL)
	cfg.MigrationsFolder = fromEnvIfWrapped(cfgFile.Migrations.LocalFolder)

	return cfg, nil
}

// fromEnvIfWrapped resolves %%NAME%% to the value of environment variable NAME
func fromEnvIfWrapped(value string) string {
	if len(value) > 4 && strings.HasPrefix(value, "%%") && strings.HasSuffix(value, "%%") {
		return os.Getenv(strings.Trim(value, "%"))
	}

	return value
}

// InitCfg writes a configuration file stub, an existing file is left untouched
func InitCfg(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrConfigInvalid, "config file [%s] already exists", path)
		}

		return errors.Wrap(err, "could not create config file")
	}

	if _, err := f.WriteString(configFileStub); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "could not write config file")
	}

	return f.Close()
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}

	return err == nil && !info.IsDir()
}
