// Package cmd holds ledgerctl's command tree: deposit, withdraw and
// transfer, each a thin wrapper that builds a domain.AccountEvent and hands
// it to the RabbitMQ-backed CommandBus, per SPEC_FULL.md §4's "never talks
// to Postgres or Mongo directly" rule for the CLI adapter.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/LerianStudio/ledgercore/internal/config"
)

// NewRootCommand builds the ledgerctl command tree.
func NewRootCommand() *cobra.Command {
	var rabbitmqURL string

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "ledgerctl publishes account commands onto the ledger's command bus",
	}

	cfg, _ := config.Load()
	defaultURL := ""

	if cfg != nil {
		defaultURL = cfg.RabbitMQURL
	}

	root.PersistentFlags().StringVar(&rabbitmqURL, "rabbitmq-url", defaultURL, "RabbitMQ connection URL (overrides LEDGER_RABBITMQ_URL)")

	root.AddCommand(newDepositCommand(&rabbitmqURL))
	root.AddCommand(newWithdrawCommand(&rabbitmqURL))
	root.AddCommand(newTransferCommand(&rabbitmqURL))

	return root
}
