package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"coopledger/cmd"
	"coopledger/database"

	log "github.com/sirupsen/logrus"
)

const usage = `usage: coopledger <command> [args...]

commands:
  run                          run the ledger and its maturity worker
  migrate up|down [N]|status   manage the database schema
  amortize -principal P -rate R -term N [-start YYYY-MM-DD]
                               print a loan schedule
  reconcile ACCOUNT_NUMBER...  compare stored balances with the ledger
  tiers list PRODUCT           print a product's interest rate table
  tiers load PRODUCT FILE.csv  replace a product's interest rate table`

func main() {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	var err error
	switch command {
	case "migrate":
		err = handleMigrationCommand()
	case "amortize":
		err = cmd.Amortize(os.Args[2:], os.Stdout)
	case "reconcile":
		err = cmd.Reconcile(context.Background(), os.Args[2:], os.Stdout)
	case "tiers":
		err = cmd.Tiers(context.Background(), os.Args[2:], os.Stdout)
	case "run":
		err = run()
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.WithError(err).Fatalf("%s failed", command)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	return cmd.Run(ctx)
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: coopledger migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
