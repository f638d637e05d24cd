package cmd

import (
	"github.com/mezonai/circlepay/security/validation"
	"github.com/spf13/cobra"
)

func newPayCmd(opts *cliOptions) *cobra.Command {
	var to, amount string
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Pay another account",
		Long: `Pay moves the amount to the recipient. The caller additionally pays the
platform fee and has their auto-save share moved into savings.`,
		Example: `  circlepay pay --caller alice --to bob --amount 100`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			if err := validation.ValidateIdentity(to); err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				paid, err := ld.Pay(caller, to, value)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"from": caller, "to": to, "amount": paid})
			})
		},
	}
	cmd.Flags().StringVarP(&to, "to", "t", "", "Recipient identity")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount the recipient receives")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newSaveCmd(opts *cliOptions) *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Move spendable balance into savings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				saved, err := ld.ManualSave(caller, value)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"identity": caller, "saved": saved})
			})
		},
	}
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount to save")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newWithdrawCmd(opts *cliOptions) *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Move savings back into the spendable balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				withdrawn, err := ld.WithdrawSavings(caller, value)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"identity": caller, "withdrawn": withdrawn})
			})
		},
	}
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount to withdraw")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
