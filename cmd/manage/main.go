// Command manage is the operator CLI: staff accounts, user activation and ledger checks.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"flariki/internal/config"
	"flariki/internal/database"
	"flariki/internal/logging"
)

const usage = `usage: manage <command> [flags]

commands:
  create-admin  -email E -password P [-role ADMIN|MANAGER] [-telegram-id N]
  set-password  -email E -password P
  activate      (-email E | -telegram-id N)
  reconcile
  seed-products [-file configs/products.yaml]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("manage: %v", err)
	}
}

func run(args []string) error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := logging.Component(baseLogger, "manage")

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, db, args, os.Stdout, logger)
}
