package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/denismitr/chmigrate"
	"github.com/denismitr/chmigrate/internal/cli"
	"github.com/logrusorgru/aurora/v3"
)

const timeout = 120 * time.Second

func fail(err error) {
	fmt.Println(aurora.Red("chmigrate: "), err.Error())
	os.Exit(1)
}

func done(msg string) {
	fmt.Println(aurora.Green("chmigrate: "), msg)
	os.Exit(0)
}

func summary(report chmigrate.Report) string {
	var parts []string
	if len(report.Applied) > 0 {
		parts = append(parts, fmt.Sprintf("applied %d", len(report.Applied)))
	}

	if len(report.Skipped) > 0 {
		parts = append(parts, fmt.Sprintf("skipped %d", len(report.Skipped)))
	}

	if len(report.RolledBack) > 0 {
		parts = append(parts, fmt.Sprintf("rolled back %d", len(report.RolledBack)))
	}

	if len(parts) == 0 {
		return "nothing to do"
	}

	return strings.Join(parts, ", ")
}

func run(cfg cli.Config, action func(ctx context.Context, app *cli.App) (string, error)) (msg string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	app, closer, createErr := cli.New(ctx, cfg)
	if createErr != nil {
		return "", createErr
	}

	defer func() {
		if closeErr := closer(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return action(ctx, app)
}

func main() {
	initConfigCmd := flag.Bool("init-config", false, "create a configuration file stub")
	initCmd := flag.Bool("init", false, "create the migrations folder, the database and the migrations table")
	newCmd := flag.String("new", "", "create a new migration with the given label")
	migrateCmd := flag.Bool("migrate", false, "apply pending migrations")
	rollbackCmd := flag.Bool("rollback", false, "rollback the most recent migrations")
	showCmd := flag.Bool("show", false, "show applied and pending migrations")

	steps := flag.Int("steps", 0, "how many migrations to apply or rollback")
	configFile := flag.String("config", "", "yaml configuration file")
	databaseURL := flag.String("db", "", "database URL, overrides "+cli.EnvDatabaseURL)
	folder := flag.String("folder", "", "migrations folder, overrides "+cli.EnvMigrationsFolder)
	verbose := flag.Bool("verbose", false, "print executed SQL and debug messages")

	flag.Parse()

	if *initConfigCmd {
		path := *configFile
		if path == "" {
			path = cli.DefaultConfigFile
		}

		if err := cli.InitCfg(path); err != nil {
			fail(err)
		}

		done(fmt.Sprintf("config file %s created", path))
	}

	path := *configFile
	if path == "" && cli.FileExists(cli.DefaultConfigFile) {
		path = cli.DefaultConfigFile
	}

	cfg, err := cli.ResolveConfig(path, cli.Config{
		DatabaseURL:      *databaseURL,
		MigrationsFolder: *folder,
		Verbose:          *verbose,
	})
	if err != nil {
		fail(err)
	}

	action := cli.ActionConfig{Steps: *steps}

	var msg string
	switch {
	case *initCmd:
		msg, err = run(cfg, func(ctx context.Context, app *cli.App) (string, error) {
			return "all done", app.Init(ctx)
		})
	case *newCmd != "":
		msg, err = run(cfg, func(ctx context.Context, app *cli.App) (string, error) {
			path, err := app.CreateMigration(*newCmd)
			return fmt.Sprintf("created %s", path), err
		})
	case *migrateCmd:
		msg, err = run(cfg, func(ctx context.Context, app *cli.App) (string, error) {
			report, err := app.Migrate(ctx, action)
			return summary(report), err
		})
	case *rollbackCmd:
		msg, err = run(cfg, func(ctx context.Context, app *cli.App) (string, error) {
			report, err := app.Rollback(ctx, action)
			return summary(report), err
		})
	case *showCmd:
		msg, err = run(cfg, func(ctx context.Context, app *cli.App) (string, error) {
			status, err := app.Status(ctx)
			if err != nil {
				return "", err
			}

			for _, name := range status.Applied {
				fmt.Println(aurora.Green("[applied] "), name)
			}

			for _, name := range status.Pending {
				fmt.Println(aurora.Yellow("[pending] "), name)
			}

			return fmt.Sprintf("%d applied, %d pending", len(status.Applied), len(status.Pending)), nil
		})
	default:
		fmt.Println(aurora.Red("chmigrate: "), "Unknown command")
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		if msg != "" {
			fmt.Println(aurora.Yellow("chmigrate: "), msg)
		}

		fail(err)
	}

	done(msg)
}
