// Command migrate manages the soundoff database schema: it applies or rolls
// back the SQL migrations under ops/migrations and loads seed data.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"soundoff.org/internal/migrate"
)

const usageText = `usage: migrate [flags] <command>

commands:
  up      apply all pending migrations
  down    roll back the most recent migration
  seed    load seed files (each runs once)
  status  print applied migrations in order

flags:`

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("SOUNDOFF_PG_DSN"), "PostgreSQL DSN (defaults to SOUNDOFF_PG_DSN)")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "directory with *.up.sql / *.down.sql files")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "directory with seed *.sql files")
		timeout        = flag.Duration("timeout", 30*time.Second, "overall deadline for the command")
	)
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*dsn, *migrationsPath, *seedsPath, *timeout, flag.Arg(0)); err != nil {
		log.Fatal(err)
	}
}

func run(dsn, migrationsPath, seedsPath string, timeout time.Duration, command string) error {
	if command == "" {
		flag.Usage()
		return fmt.Errorf("missing command")
	}
	if dsn == "" {
		return fmt.Errorf("missing DSN: provide -dsn or set SOUNDOFF_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrationsPath, seedsPath)

	switch command {
	case "up":
		if err := mgr.Up(ctx); err != nil {
			return fmt.Errorf("up: %w", err)
		}
	case "down":
		if err := mgr.Down(ctx); err != nil {
			return fmt.Errorf("down: %w", err)
		}
	case "seed":
		if err := mgr.Seed(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		for i, name := range applied {
			fmt.Printf("%3d  %s\n", i+1, name)
		}
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}
