package cmd

import (
	"fmt"

	"github.com/koopa0/ragchat/db"
	"github.com/koopa0/ragchat/internal/config"
)

// runMigrate applies pending database migrations, or reports the applied
// version when invoked as "ragchat migrate status". Serve and chat modes
// migrate automatically on startup; this command exists for operators who
// want to run migrations separately.
func runMigrate(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	connURL := cfg.PostgresURL()

	if len(args) > 0 && args[0] == "status" {
		status, err := db.MigrationStatus(connURL)
		if err != nil {
			return fmt.Errorf("checking migration status: %w", err)
		}
		if status.Version == 0 {
			fmt.Println("No migrations applied")
			return nil
		}
		fmt.Printf("Version: %d\n", status.Version)
		fmt.Printf("Dirty: %v\n", status.Dirty)
		return nil
	}

	if err := db.Migrate(connURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	status, err := db.MigrationStatus(connURL)
	if err != nil {
		return fmt.Errorf("checking migration status: %w", err)
	}
	fmt.Printf("Migrations applied (version %d)\n", status.Version)
	return nil
}
