package db

import (
	"fmt"
	"io"
)

// RunMigrateCommand handles the 'migrate' subcommand. Output goes to w.
func RunMigrateCommand(args []string, dbPath string, w io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(w)
		return nil
	}

	// OpenDB, not NewDB: the migrations manage the schema here.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Migration rolled back successfully")
	case "status":
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	return printMigrateStatus(database, w)
}

func printMigrateStatus(database *DB, w io.Writer) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Current version: %d\n", version)
	fmt.Fprintf(w, "Latest version: %d\n", latest)
	fmt.Fprintf(w, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(w, "\n⚠️  WARNING: Database is in a dirty state!")
	}
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprintln(w, "Database Migration Commands")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: rovermap migrate <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up        Apply all pending migrations")
	fmt.Fprintln(w, "  down      Rollback one migration")
	fmt.Fprintln(w, "  status    Show current migration version")
	fmt.Fprintln(w, "  help      Show this help message")
}
