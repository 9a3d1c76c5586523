package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up              apply every pending migration
  down            roll back the latest migration
  status          list migrations and when they were applied
  to <version>    move the schema to YYYYMMDDHHMMSS
  create <name>   write a new migration file into -dir
  validate        check file names and goose markers

-dir defaults to the migrations compiled into the binary; create writes to
` + migrate.DefaultDir + ` when it is unset.
`

func main() {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	flags.Usage = func() { fmt.Fprint(flags.Output(), usage) }
	dir := flags.String("dir", "", "migrations directory")
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}
	command, args := flags.Arg(0), flags.Args()[1:]

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": command, "dir": *dir})

	switch command {
	case "create":
		if len(args) != 1 {
			fail(ctx, logg, "create needs a migration name", nil)
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, args[0], time.Now())
		if err != nil {
			fail(ctx, logg, "create migration", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		count, err := migrate.ValidateDir(*dir)
		if err != nil {
			fail(ctx, logg, "validate migrations", err)
		}
		fmt.Printf("%d migrations valid\n", count)
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail(ctx, logg, "load config", err)
	}
	if cfg.DB.IsSQLite() {
		fail(ctx, logg, "goose migrations target postgres; sqlite schemas come from AUTO_MIGRATE", nil)
	}
	logg = logger.ForApp("migrate", cfg.App)
	ctx = logg.WithFields(context.Background(), map[string]any{"cmd": command, "dir": *dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "connect database", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail(ctx, logg, "extract sql.DB", err)
	}
	fsys, err := migrate.Source(*dir)
	if err != nil {
		fail(ctx, logg, "open migrations", err)
	}
	migrator, err := migrate.New(sqlDB, fsys)
	if err != nil {
		fail(ctx, logg, "build migrator", err)
	}

	if err := run(ctx, migrator, command, args, os.Stdout); err != nil {
		fail(ctx, logg, command+" failed", err)
	}
}

func run(ctx context.Context, m *migrate.Migrator, command string, args []string, out io.Writer) error {
	switch command {
	case "up":
		results, err := m.Up(ctx)
		printResults(out, results)
		return err
	case "down":
		result, err := m.Down(ctx)
		if result != nil {
			printResults(out, []*goose.MigrationResult{result})
		}
		return err
	case "status":
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			applied := "pending"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%-14d  %-20s  %s\n", s.Source.Version, applied, filepath.Base(s.Source.Path))
		}
		return nil
	case "to":
		if len(args) != 1 {
			return fmt.Errorf("to needs a target version")
		}
		results, err := m.To(ctx, args[0])
		printResults(out, results)
		return err
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printResults(out io.Writer, results []*goose.MigrationResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "nothing to do")
		return
	}
	for _, r := range results {
		fmt.Fprintf(out, "%-4s %s (%s)\n", r.Direction, filepath.Base(r.Source.Path), r.Duration.Round(time.Millisecond))
	}
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = errors.New(msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
