package cmd

import (
	"github.com/spf13/cobra"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

func newDepositCommand(rabbitmqURL *string) *cobra.Command {
	var accountID, amount string

	c := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit an amount into an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseAmount(amount)
			if err != nil {
				return err
			}

			evt := domain.AccountEvent{
				AccountID:     accountID,
				Amount:        parsed,
				Type:          domain.EventDeposit,
				TransactionID: newTransactionID(),
			}

			return publish(cmd.Context(), *rabbitmqURL, evt)
		},
	}

	c.Flags().StringVar(&accountID, "account", "", "account id")
	c.Flags().StringVar(&amount, "amount", "", "amount to deposit")
	_ = c.MarkFlagRequired("account")
	_ = c.MarkFlagRequired("amount")

	return c
}
