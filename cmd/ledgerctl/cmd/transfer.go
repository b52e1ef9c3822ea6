package cmd

import (
	"github.com/spf13/cobra"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

func newTransferCommand(rabbitmqURL *string) *cobra.Command {
	var fromAccount, toAccount, amount string

	c := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer an amount between two accounts",
		Long: "Transfer publishes phase 1 of a choreographed transfer: a WITHDRAW\n" +
			"from the source account carrying the destination account id. The Saga\n" +
			"observes this fact and emits the phase-2 deposit independently; this\n" +
			"command never waits for or reads back the transfer's outcome.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseAmount(amount)
			if err != nil {
				return err
			}

			evt := domain.AccountEvent{
				AccountID:       fromAccount,
				Amount:          parsed,
				Type:            domain.EventWithdraw,
				TransactionID:   newTransactionID(),
				TargetAccountID: toAccount,
			}

			return publish(cmd.Context(), *rabbitmqURL, evt)
		},
	}

	c.Flags().StringVar(&fromAccount, "from", "", "source account id")
	c.Flags().StringVar(&toAccount, "to", "", "destination account id")
	c.Flags().StringVar(&amount, "amount", "", "amount to transfer")
	_ = c.MarkFlagRequired("from")
	_ = c.MarkFlagRequired("to")
	_ = c.MarkFlagRequired("amount")

	return c
}
