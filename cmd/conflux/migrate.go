package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/BaSui01/conflux/config"
	"github.com/BaSui01/conflux/internal/migration"
)

func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "up":
		withMigrator("migrate up", subargs, func(ctx context.Context, m *migration.DefaultMigrator) error {
			if err := m.Up(ctx); err != nil {
				return err
			}
			fmt.Println("Migrations applied")
			return printMigrationInfo(ctx, m)
		})
	case "down":
		runMigrateDown(subargs)
	case "status":
		withMigrator("migrate status", subargs, printMigrationStatus)
	case "version":
		withMigrator("migrate version", subargs, func(ctx context.Context, m *migration.DefaultMigrator) error {
			version, dirty, err := m.Version(ctx)
			if err != nil {
				return err
			}
			if dirty {
				fmt.Printf("Version: %d (dirty)\n", version)
			} else {
				fmt.Printf("Version: %d\n", version)
			}
			return nil
		})
	case "goto":
		runMigrateGoto(subargs)
	case "force":
		runMigrateForce(subargs)
	case "reset":
		withMigrator("migrate reset", subargs, func(ctx context.Context, m *migration.DefaultMigrator) error {
			if err := m.DownAll(ctx); err != nil {
				return err
			}
			fmt.Println("All migrations rolled back")
			return nil
		})
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  conflux migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration (--all for all)
  status    Show migration status
  version   Show current migration version
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  reset     Rollback all migrations
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  conflux migrate up
  conflux migrate up --config /etc/conflux/config.yaml
  conflux migrate status
  conflux migrate goto 1
  conflux migrate down --all`)
}

// createMigrator builds a migrator from the flags already registered on fs.
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

// withMigrator runs fn against a migrator built from args, handling setup
// and teardown.
func withMigrator(name string, args []string, fn func(context.Context, *migration.DefaultMigrator) error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	migrator, err := createMigrator(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := fn(context.Background(), migrator); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		os.Exit(1)
	}
}

func runMigrateDown(args []string) {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback all migrations")

	migrator, err := createMigrator(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	ctx := context.Background()
	if *all {
		err = migrator.DownAll(ctx)
	} else {
		err = migrator.Down(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration rollback failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Rollback complete")
}

func runMigrateGoto(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: conflux migrate goto <version>\n")
		os.Exit(1)
	}

	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	withMigrator("migrate goto", args[1:], func(ctx context.Context, m *migration.DefaultMigrator) error {
		if err := m.Goto(ctx, uint(version)); err != nil {
			return err
		}
		fmt.Printf("Migrated to version %d\n", version)
		return nil
	})
}

func runMigrateForce(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: conflux migrate force <version>\n")
		os.Exit(1)
	}

	version, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}

	withMigrator("migrate force", args[1:], func(ctx context.Context, m *migration.DefaultMigrator) error {
		if err := m.Force(ctx, int(version)); err != nil {
			return err
		}
		fmt.Printf("Forced version to %d\n", version)
		return nil
	})
}

func printMigrationStatus(ctx context.Context, m *migration.DefaultMigrator) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED\tDIRTY")
	for _, s := range statuses {
		applied := "no"
		if s.Applied {
			applied = "yes"
		}
		dirty := ""
		if s.Dirty {
			dirty = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.Name, applied, dirty)
	}
	return w.Flush()
}

func printMigrationInfo(ctx context.Context, m *migration.DefaultMigrator) error {
	info, err := m.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Current version: %d, applied: %d/%d, pending: %d\n",
		info.CurrentVersion, info.AppliedMigrations, info.TotalMigrations, info.PendingMigrations)
	return nil
}
