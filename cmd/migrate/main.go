// Command migrate applies or rolls back the Postgres schema.
//
//	migrate up | down | version | to <n>
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"paintball-ticketing/internal/config"
	"paintball-ticketing/internal/database/migrations"
	"paintball-ticketing/internal/logger"

	_ "github.com/lib/pq"
)

func main() {
	log := logger.NewLogger()
	if err := run(os.Args[1:], config.Load(), log); err != nil {
		log.Error("MIGRATE", err.Error())
		log.Close()
		os.Exit(1)
	}
	log.Close()
}

func run(args []string, cfg *config.Config, log *logger.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: migrate up|down|version|to <n>")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	runner := migrations.NewRunner(db, log)
	defer runner.Close()

	switch args[0] {
	case "up":
		return runner.MigrateUp()
	case "down":
		if err := runner.MigrateDown(); err != nil {
			return err
		}
		log.Info("MIGRATE", "All migrations rolled back")
		return nil
	case "version":
		v, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		log.Info("MIGRATE", fmt.Sprintf("version %d (dirty: %t)", v, dirty))
		return nil
	case "to":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate to <n>")
		}
		n, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return runner.MigrateTo(uint(n))
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
