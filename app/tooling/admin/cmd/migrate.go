package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

var (
	migrationsDir string
	migrateDown   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the clickhouse schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateRun(cmd.OutOrStdout(), migrationsDir, dsn, migrateDown)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations/clickhouse", "Path to the clickhouse migration files.")
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll every migration back.")
	rootCmd.AddCommand(migrateCmd)
}

func migrateRun(w io.Writer, dir string, dsn string, down bool) error {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat migrations dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	sourceURL := fmt.Sprintf("file://%s", filepath.ToSlash(dir))
	m, err := migrate.New(sourceURL, withMultiStatement(dsn))
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Errorw("migrate", "status", "source close", "ERROR", srcErr)
		}
		if dbErr != nil {
			log.Errorw("migrate", "status", "database close", "ERROR", dbErr)
		}
	}()

	switch down {
	case true:
		err = m.Down()
	default:
		err = m.Up()
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintln(w, "no migrations to apply")
			return nil
		}
		return err
	}

	fmt.Fprintln(w, "migrations applied successfully")

	return nil
}

// withMultiStatement turns on multi statement mode in the clickhouse driver
// so a migration file may hold more than one statement.
func withMultiStatement(dsn string) string {
	if strings.Contains(dsn, "x-multi-statement=") {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + "x-multi-statement=true"
}
