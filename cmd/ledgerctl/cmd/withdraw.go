package cmd

import (
	"github.com/spf13/cobra"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

func newWithdrawCommand(rabbitmqURL *string) *cobra.Command {
	var accountID, amount string

	c := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw an amount from an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseAmount(amount)
			if err != nil {
				return err
			}

			evt := domain.AccountEvent{
				AccountID:     accountID,
				Amount:        parsed,
				Type:          domain.EventWithdraw,
				TransactionID: newTransactionID(),
			}

			return publish(cmd.Context(), *rabbitmqURL, evt)
		},
	}

	c.Flags().StringVar(&accountID, "account", "", "account id")
	c.Flags().StringVar(&amount, "amount", "", "amount to withdraw")
	_ = c.MarkFlagRequired("account")
	_ = c.MarkFlagRequired("amount")

	return c
}
