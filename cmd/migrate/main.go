// Command migrate inspects and changes the database schema without starting
// the server.
//
//	migrate status        show the schema plan and pending SQL migrations
//	migrate up            apply pending SQL migrations (PostgreSQL)
//	migrate auto          run GORM AutoMigrate over the models
//	migrate down VERSION  revert one SQL migration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"pivot/internal/config"
	"pivot/internal/database"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

var errUsage = errors.New("usage: migrate status|up|auto|down VERSION")

func main() {
	flag.Parse()
	if err := run(context.Background(), flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	// database.Connect would apply the schema itself.
	db, err := database.Open(database.Dialector(cfg))
	if err != nil {
		return err
	}
	migrator := database.NewMigrator(db, database.Embedded)

	switch args[0] {
	case "status":
		return printStatus(ctx, db, cfg)
	case "up":
		if cfg.DBDriver == "sqlite" {
			return errors.New(`sql migrations are PostgreSQL only; use "auto" on sqlite`)
		}
		n, err := migrator.Up(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("applied %d migration(s)\n", n)
	case "auto":
		if err := database.AutoMigrate(db.WithContext(ctx)); err != nil {
			return err
		}
		fmt.Println("automigrate done")
	case "down":
		if len(args) != 2 {
			return errUsage
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad version %q", args[1])
		}
		if err := migrator.Down(ctx, version); err != nil {
			return err
		}
		fmt.Printf("reverted %06d\n", version)
	default:
		return errUsage
	}
	return nil
}

func printStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	status, err := database.Status(ctx, db, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("env=%s mode=%s sql=%t auto=%t\n", status.Env, status.Mode, status.SQL, status.Auto)
	for _, v := range status.Applied {
		fmt.Printf("  applied  %06d\n", v)
	}
	for _, m := range status.Pending {
		fmt.Printf("  pending  %s\n", m)
	}
	return nil
}
